package kb

import (
	"fmt"
	"sync"
	"testing"

	"github.com/signalsfoundry/dishlink-simulator/model"
)

func TestAddAndGetDish(t *testing.T) {
	store := NewDishRegistry()
	d := model.Dish{
		ID:     "a",
		Name:   "Roof-A",
		State:  model.MechanicalState{AzimuthDeg: 370, TiltDeg: 90},
		Params: model.DefaultPhysicalParameters(),
	}
	if err := store.AddDish(d); err != nil {
		t.Fatalf("AddDish error: %v", err)
	}
	got, ok := store.GetDish("a")
	if !ok || got.Name != "Roof-A" {
		t.Fatalf("GetDish returned %#v, %v; want name Roof-A", got, ok)
	}
	if got.State.AzimuthDeg != 10 {
		t.Fatalf("stored azimuth = %v, want 10 after wrap", got.State.AzimuthDeg)
	}
}

func TestAddDishValidation(t *testing.T) {
	store := NewDishRegistry()
	if err := store.AddDish(model.Dish{}); err == nil {
		t.Fatalf("expected empty ID to fail")
	}
	if err := store.AddDish(model.Dish{ID: "a"}); err != nil {
		t.Fatalf("first AddDish error: %v", err)
	}
	if err := store.AddDish(model.Dish{ID: "a"}); err == nil {
		t.Fatalf("expected duplicate AddDish to fail")
	}
}

func TestGetDishReturnsCopy(t *testing.T) {
	store := NewDishRegistry()
	pos := &model.Position{X: 1, Y: 2, Z: 3}
	if err := store.AddDish(model.Dish{ID: "a", State: model.MechanicalState{Position: pos}}); err != nil {
		t.Fatalf("AddDish error: %v", err)
	}
	pos.X = 99

	got, _ := store.GetDish("a")
	if got.State.Position.X != 1 {
		t.Fatalf("registry aliased caller position: X = %v", got.State.Position.X)
	}
	got.State.Position.X = 42
	again, _ := store.GetDish("a")
	if again.State.Position.X != 1 {
		t.Fatalf("registry aliased returned position: X = %v", again.State.Position.X)
	}
}

func TestListDishesSorted(t *testing.T) {
	store := NewDishRegistry()
	for _, id := range []string{"c", "a", "b"} {
		if err := store.AddDish(model.Dish{ID: id}); err != nil {
			t.Fatalf("AddDish error: %v", err)
		}
	}
	got := store.ListDishes()
	if len(got) != 3 {
		t.Fatalf("ListDishes len=%d, want 3", len(got))
	}
	for i, want := range []string{"a", "b", "c"} {
		if got[i].ID != want {
			t.Fatalf("ListDishes[%d] = %q, want %q", i, got[i].ID, want)
		}
	}
}

func TestUpdateStateAndSubscribe(t *testing.T) {
	store := NewDishRegistry()
	if err := store.AddDish(model.Dish{ID: "a"}); err != nil {
		t.Fatalf("AddDish error: %v", err)
	}

	var got []Event
	unsubscribe := store.Subscribe(func(e Event) {
		got = append(got, e)
	})

	if err := store.UpdateState("a", model.MechanicalState{AzimuthDeg: -10, TiltDeg: 200}); err != nil {
		t.Fatalf("UpdateState error: %v", err)
	}
	if err := store.Nudge("a", 5, -30); err != nil {
		t.Fatalf("Nudge error: %v", err)
	}
	unsubscribe()
	if err := store.Nudge("a", 1, 0); err != nil {
		t.Fatalf("Nudge error: %v", err)
	}

	if len(got) != 2 {
		t.Fatalf("got %d events, want 2 (unsubscribe should stop delivery)", len(got))
	}
	if got[0].Type != EventStateUpdated {
		t.Fatalf("event type = %v, want %v", got[0].Type, EventStateUpdated)
	}
	if got[0].Dish.State.AzimuthDeg != 350 || got[0].Dish.State.TiltDeg != 180 {
		t.Fatalf("first event state = %+v, want az 350 tilt 180", got[0].Dish.State)
	}
	if got[1].Dish.State.AzimuthDeg != 355 || got[1].Dish.State.TiltDeg != 150 {
		t.Fatalf("second event state = %+v, want az 355 tilt 150", got[1].Dish.State)
	}
}

func TestUnsubscribeKeepsOtherSubscribers(t *testing.T) {
	store := NewDishRegistry()
	if err := store.AddDish(model.Dish{ID: "a"}); err != nil {
		t.Fatalf("AddDish error: %v", err)
	}
	var first, second int
	unsubFirst := store.Subscribe(func(Event) { first++ })
	store.Subscribe(func(Event) { second++ })
	unsubFirst()

	if err := store.Nudge("a", 1, 0); err != nil {
		t.Fatalf("Nudge error: %v", err)
	}
	if first != 0 || second != 1 {
		t.Fatalf("first=%d second=%d, want 0 and 1", first, second)
	}
}

func TestSetParametersSanitizes(t *testing.T) {
	store := NewDishRegistry()
	if err := store.AddDish(model.Dish{ID: "a", Params: model.DefaultPhysicalParameters()}); err != nil {
		t.Fatalf("AddDish error: %v", err)
	}
	bad := model.DefaultPhysicalParameters()
	bad.DiameterM = 0
	bad.BlockageRatio = 3
	if err := store.SetParameters("a", bad); err != nil {
		t.Fatalf("SetParameters error: %v", err)
	}
	got, _ := store.GetDish("a")
	if got.Params.DiameterM <= 0 || got.Params.BlockageRatio > 0.95 {
		t.Fatalf("parameters not sanitized: %+v", got.Params)
	}
	if err := store.SetParameters("missing", bad); err == nil {
		t.Fatalf("expected error for unknown dish")
	}
}

func TestConcurrentAccess(t *testing.T) {
	store := NewDishRegistry()
	if err := store.AddDish(model.Dish{ID: "a"}); err != nil {
		t.Fatalf("AddDish error: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, _ = store.GetDish("a")
			_ = store.ListDishes()
		}()
		go func() {
			defer wg.Done()
			_ = store.UpdateState("a", model.MechanicalState{AzimuthDeg: float64(i), TiltDeg: 90})
		}()
	}
	wg.Wait()

	if err := store.UpdateState(fmt.Sprintf("missing-%d", 1), model.MechanicalState{}); err == nil {
		t.Fatalf("expected error for unknown dish")
	}
}
