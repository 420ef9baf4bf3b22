package apex

import (
	"reflect"
	"testing"
)

func TestMaxStepsEnv(t *testing.T) {
	env := &MaxStepsEnv{Env: &scriptedEnv{}, MaxSteps: 3}
	if _, err := env.Reset(); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 2; i++ {
		_, _, done, err := env.Step([]float64{1, 0})
		if err != nil {
			t.Fatal(err)
		}
		if done {
			t.Fatalf("expected step %d not to end the episode", i)
		}
	}
	_, _, done, err := env.Step([]float64{1, 0})
	if err != nil {
		t.Fatal(err)
	}
	if !done {
		t.Error("expected the episode to end at the step cap")
	}

	if _, err := env.Reset(); err != nil {
		t.Fatal(err)
	}
	_, _, done, err = env.Step([]float64{1, 0})
	if err != nil {
		t.Fatal(err)
	}
	if done {
		t.Error("expected a fresh count after a reset")
	}
}

func TestObsFilterEnv(t *testing.T) {
	env := &ObsFilterEnv{
		Env: &scriptedEnv{},
		Filter: func(obs []float64) []float64 {
			res := make([]float64, len(obs))
			for i, x := range obs {
				res[i] = x * 2
			}
			return res
		},
	}
	obs, err := env.Reset()
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(obs, []float64{0}) {
		t.Errorf("expected [0] but got %v", obs)
	}
	obs, _, _, err = env.Step([]float64{1, 0})
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(obs, []float64{2}) {
		t.Errorf("expected [2] but got %v", obs)
	}
}
