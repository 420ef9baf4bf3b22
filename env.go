package apex

import (
	"errors"
	"fmt"

	gym "github.com/openai/gym-http-api/binding-go"
	"github.com/unixpickle/essentials"
)

// Env is an instance of an RL environment.
//
// Observations are fixed-shape vectors, produced either
// directly or through an ObsFilterEnv. Discrete actions
// are encoded as one-hot vectors.
type Env interface {
	Reset() (observation []float64, err error)
	Step(action []float64) (observation []float64,
		reward float64, done bool, err error)
}

type gymEnv struct {
	client *gym.Client
	id     gym.InstanceID
	render bool

	actConv gymSpaceConverter
	obsConv gymSpaceConverter
}

// GymEnv creates an Env from an OpenAI Gym instance.
//
// This will fail if the instance requires an unsupported
// space type or if it fails to fetch space info.
func GymEnv(client *gym.Client, id gym.InstanceID, render bool) (env Env, err error) {
	defer essentials.AddCtxTo("create gym Env", &err)
	actionSpace, err := client.ActionSpace(id)
	if err != nil {
		return nil, err
	}
	obsSpace, err := client.ObservationSpace(id)
	if err != nil {
		return nil, err
	}
	actConv, err := converterForSpace(actionSpace)
	if err != nil {
		return nil, err
	}
	obsConv, err := converterForSpace(obsSpace)
	if err != nil {
		return nil, err
	}
	return &gymEnv{
		client:  client,
		id:      id,
		actConv: actConv,
		obsConv: obsConv,
		render:  render,
	}, nil
}

func (g *gymEnv) Reset() (observation []float64, err error) {
	defer essentials.AddCtxTo("reset gym Env", &err)
	obs, err := g.client.Reset(g.id)
	if err != nil {
		return nil, err
	}
	return g.obsConv.FromGym(obs)
}

func (g *gymEnv) Step(action []float64) (observation []float64, reward float64,
	done bool, err error) {
	defer essentials.AddCtxTo("step gym Env", &err)
	gymAction := g.actConv.ToGym(action)
	var obs interface{}
	obs, reward, done, _, err = g.client.Step(g.id, gymAction, g.render)
	if err != nil {
		return
	}
	observation, err = g.obsConv.FromGym(obs)
	return
}

type gymSpaceConverter interface {
	ToGym(in []float64) interface{}
	FromGym(in interface{}) ([]float64, error)
}

func converterForSpace(s *gym.Space) (gymSpaceConverter, error) {
	switch s.Name {
	case "Box":
		return &boxSpaceConverter{}, nil
	case "Discrete":
		return &discreteSpaceConverter{N: s.N}, nil
	default:
		return nil, errors.New("unsupported space: " + s.Name)
	}
}

type boxSpaceConverter struct{}

func (b *boxSpaceConverter) ToGym(in []float64) interface{} {
	return in
}

func (b *boxSpaceConverter) FromGym(in interface{}) ([]float64, error) {
	switch in := in.(type) {
	case []float64:
		return in, nil
	case [][]float64:
		var joined []float64
		for _, x := range in {
			joined = append(joined, x...)
		}
		return joined, nil
	case [][][]float64:
		var joined []float64
		for _, x := range in {
			for _, y := range x {
				joined = append(joined, y...)
			}
		}
		return joined, nil
	default:
		return nil, fmt.Errorf("unexpected observation type: %T", in)
	}
}

type discreteSpaceConverter struct {
	N int
}

func (d *discreteSpaceConverter) ToGym(in []float64) interface{} {
	return argmax(in)
}

func (d *discreteSpaceConverter) FromGym(in interface{}) ([]float64, error) {
	var inInt int
	switch in := in.(type) {
	case int:
		inInt = in
	case float64:
		inInt = int(in)
	default:
		return nil, fmt.Errorf("unexpected observation type: %T", in)
	}
	if inInt < 0 || inInt >= d.N {
		return nil, fmt.Errorf("discrete observation out of bounds: %d", inInt)
	}
	return oneHot(d.N, inInt), nil
}

// oneHot encodes index i as a one-hot vector of size n.
func oneHot(n, i int) []float64 {
	res := make([]float64, n)
	res[i] = 1
	return res
}
