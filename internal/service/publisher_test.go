package service

import (
	"testing"

	"ratio_watch/internal/domain"
)

func TestPublisher_FanOut(t *testing.T) {
	var order []string
	first := domain.SnapshotSubscriberFunc(func(s domain.Snapshot) { order = append(order, "first") })
	second := domain.SnapshotSubscriberFunc(func(s domain.Snapshot) { order = append(order, "second") })

	p := NewPublisher(first)
	p.Subscribe(second)
	p.Publish(domain.Snapshot{FutBelow325: 1})

	if len(order) != 2 || order[0] != "first" || order[1] != "second" {
		t.Errorf("delivery order = %v", order)
	}
}

func TestPublisher_PanickingSubscriberIsSkipped(t *testing.T) {
	var got domain.Snapshot
	p := NewPublisher(
		domain.SnapshotSubscriberFunc(func(domain.Snapshot) { panic("bad subscriber") }),
		domain.SnapshotSubscriberFunc(func(s domain.Snapshot) { got = s }),
	)

	p.Publish(domain.Snapshot{CashAbove326: 5})

	if got.CashAbove326 != 5 {
		t.Error("later subscriber must still receive the snapshot")
	}
}
