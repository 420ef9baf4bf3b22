package apex

import (
	"math"
	"testing"
)

func TestBufferAccumulation(t *testing.T) {
	gamma := 0.9
	rewards := []float64{1, -2, 3.5, 0.25}
	buf := NewBuffer(7, 6, gamma)
	for i, r := range rewards {
		buf.Add(Transition{
			State:    []float64{float64(i)},
			Action:   i % 2,
			Reward:   r,
			Discount: gamma,
			Q:        []float64{0, 0},
		})
	}
	buf.EmitTruncated([]float64{-1})
	batch, err := buf.Drain(1)
	if err != nil {
		t.Fatal(err)
	}

	var expectedReward float64
	discount := 1.0
	for _, r := range rewards {
		expectedReward += discount * r
		discount *= gamma
	}
	trans := batch[0]
	if math.Abs(trans.Reward-expectedReward) > 1e-12 {
		t.Errorf("expected reward %v but got %v", expectedReward, trans.Reward)
	}
	expectedDiscount := math.Pow(gamma, float64(len(rewards)-1))
	if math.Abs(trans.Discount-expectedDiscount) > 1e-12 {
		t.Errorf("expected discount %v but got %v", expectedDiscount, trans.Discount)
	}
	if trans.State[0] != 0 {
		t.Errorf("expected head state 0 but got %v", trans.State[0])
	}
}

func TestBufferEmitAtCapacity(t *testing.T) {
	buf := NewBuffer(0, 3, 0.99)
	for i := 0; i < 3; i++ {
		buf.Add(Transition{
			State:    []float64{float64(i)},
			Action:   i,
			Reward:   float64(i + 1),
			Discount: 0.99,
			Q:        []float64{float64(i), 0},
		})
	}
	if buf.Pending() != 0 {
		t.Errorf("expected 0 pending but got %d", buf.Pending())
	}
	if buf.Len() != 3 {
		t.Errorf("expected 3 buffered but got %d", buf.Len())
	}

	buf.Add(Transition{
		State:    []float64{3},
		Action:   1,
		Reward:   4,
		Discount: 0.99,
		Q:        []float64{0.5, 1.5},
	})
	if buf.Pending() != 1 {
		t.Errorf("expected 1 pending but got %d", buf.Pending())
	}
	if buf.Len() != 0 {
		t.Errorf("expected empty buffer but got %d", buf.Len())
	}

	batch, err := buf.Drain(1)
	if err != nil {
		t.Fatal(err)
	}
	trans := batch[0]
	if trans.State[0] != 0 || trans.Action != 0 {
		t.Errorf("expected head step 0 but got state %v action %d", trans.State, trans.Action)
	}
	if trans.LandingState[0] != 3 {
		t.Errorf("expected landing state 3 but got %v", trans.LandingState)
	}
	if trans.LandingQ[0] != 0.5 || trans.LandingQ[1] != 1.5 {
		t.Errorf("expected landing values from the overflowing step but got %v", trans.LandingQ)
	}
	expected := 1 + 0.99*2 + 0.99*0.99*3
	if math.Abs(trans.Reward-expected) > 1e-12 {
		t.Errorf("expected reward %v but got %v", expected, trans.Reward)
	}
}

func TestBufferEmitCadence(t *testing.T) {
	buf := NewBuffer(4, 3, 0.99)
	for i := 0; i < 8; i++ {
		buf.Add(Transition{
			State:    []float64{float64(i)},
			Action:   0,
			Reward:   float64(i + 1),
			Discount: 0.99,
			Q:        []float64{0},
		})
	}
	if buf.Pending() != 2 {
		t.Fatalf("expected 2 pending but got %d", buf.Pending())
	}
	batch, err := buf.Drain(2)
	if err != nil {
		t.Fatal(err)
	}
	if batch[0].Key != "4:0" || batch[1].Key != "4:1" {
		t.Errorf("expected keys 4:0 and 4:1 but got %s and %s", batch[0].Key, batch[1].Key)
	}
	first := 1 + 0.99*2 + 0.9801*3
	second := 5 + 0.99*6 + 0.9801*7
	if math.Abs(batch[0].Reward-first) > 1e-12 {
		t.Errorf("expected reward %v but got %v", first, batch[0].Reward)
	}
	if math.Abs(batch[1].Reward-second) > 1e-12 {
		t.Errorf("expected reward %v but got %v", second, batch[1].Reward)
	}
	for _, trans := range batch {
		if math.Abs(trans.Discount-0.9801) > 1e-12 {
			t.Errorf("expected discount 0.9801 but got %v", trans.Discount)
		}
	}
}

func TestBufferTruncation(t *testing.T) {
	buf := NewBuffer(1, 5, 0.9)
	for i := 0; i < 2; i++ {
		buf.Add(Transition{
			State:    []float64{float64(i)},
			Action:   0,
			Reward:   float64(i + 1),
			Discount: 0.9,
			Q:        []float64{1, 2, 3},
		})
	}
	buf.EmitTruncated([]float64{7})
	if buf.Pending() != 1 {
		t.Fatalf("expected 1 pending but got %d", buf.Pending())
	}
	batch, err := buf.Drain(1)
	if err != nil {
		t.Fatal(err)
	}
	trans := batch[0]
	if math.Abs(trans.Reward-(1+0.9*2)) > 1e-12 {
		t.Errorf("expected reward %v but got %v", 1+0.9*2, trans.Reward)
	}
	if math.Abs(trans.Discount-0.9) > 1e-12 {
		t.Errorf("expected discount 0.9 but got %v", trans.Discount)
	}
	if trans.LandingState[0] != 7 {
		t.Errorf("expected terminal landing state but got %v", trans.LandingState)
	}
	if len(trans.LandingQ) != 3 {
		t.Fatalf("expected 3 landing values but got %d", len(trans.LandingQ))
	}
	for i, v := range trans.LandingQ {
		if v != 0 {
			t.Errorf("expected landing value %d to be 0 but got %v", i, v)
		}
	}
}

func TestBufferTruncateEmpty(t *testing.T) {
	buf := NewBuffer(0, 3, 0.99)
	buf.EmitTruncated([]float64{1})
	if buf.Pending() != 0 {
		t.Errorf("expected no pending transitions but got %d", buf.Pending())
	}
}

func TestBufferKeys(t *testing.T) {
	buf := NewBuffer(9, 2, 0.5)
	for i := 0; i < 3; i++ {
		buf.Add(Transition{State: []float64{0}, Reward: 1, Discount: 0.5, Q: []float64{0}})
		buf.EmitTruncated([]float64{1})
	}
	batch, err := buf.Drain(3)
	if err != nil {
		t.Fatal(err)
	}
	expected := []string{"9:0", "9:1", "9:2"}
	for i, trans := range batch {
		if trans.Key != expected[i] {
			t.Errorf("expected key %s but got %s", expected[i], trans.Key)
		}
	}

	other := NewBuffer(10, 2, 0.5)
	other.Add(Transition{State: []float64{0}, Reward: 1, Discount: 0.5, Q: []float64{0}})
	other.EmitTruncated([]float64{1})
	otherBatch, err := other.Drain(1)
	if err != nil {
		t.Fatal(err)
	}
	if otherBatch[0].Key == batch[0].Key {
		t.Errorf("keys from different actors should differ but both were %s", otherBatch[0].Key)
	}
}

func TestBufferDrain(t *testing.T) {
	buf := NewBuffer(1, 2, 0.5)
	for i := 0; i < 3; i++ {
		buf.Add(Transition{State: []float64{float64(i)}, Reward: 1, Discount: 0.5, Q: []float64{0}})
		buf.EmitTruncated([]float64{1})
	}
	if _, err := buf.Drain(4); err != ErrInsufficientData {
		t.Errorf("expected ErrInsufficientData but got %v", err)
	}
	if buf.Pending() != 3 {
		t.Errorf("expected a failed drain to leave 3 pending but got %d", buf.Pending())
	}
	batch, err := buf.Drain(2)
	if err != nil {
		t.Fatal(err)
	}
	if batch[0].Key != "1:0" || batch[1].Key != "1:1" {
		t.Errorf("expected oldest transitions first but got %s and %s", batch[0].Key, batch[1].Key)
	}
	if buf.Pending() != 1 {
		t.Errorf("expected 1 pending but got %d", buf.Pending())
	}
	rest, err := buf.Drain(1)
	if err != nil {
		t.Fatal(err)
	}
	if rest[0].Key != "1:2" {
		t.Errorf("expected key 1:2 but got %s", rest[0].Key)
	}
}
