package apex

import (
	"bytes"
	"encoding/gob"
	"errors"
	"fmt"

	"github.com/unixpickle/anydiff"
	"github.com/unixpickle/anynet"
	"github.com/unixpickle/anynet/anysgd"
	"github.com/unixpickle/anyvec"
	"github.com/unixpickle/essentials"
	"github.com/unixpickle/serializer"
)

// A QFunc estimates action values and learns from
// bootstrapped targets.
//
// Evaluate returns one value per action for a state.
// Update performs one training step pulling the predicted
// values of the given state-action pairs toward the given
// targets. Parameters and SetParameters snapshot and
// restore the function's parameters as an opaque blob.
type QFunc interface {
	Evaluate(state []float64) ([]float64, error)
	Update(states [][]float64, actions []int, targets []float64) error
	Parameters() ([]byte, error)
	SetParameters(data []byte) error
}

// An AnynetQFunc is a QFunc backed by a feed-forward
// anynet network with one output per action.
//
// It is not safe for concurrent use; every actor and the
// learner should own an independent copy.
type AnynetQFunc struct {
	// Net maps a state vector to one value per action.
	//
	// It must work with serializer.Copy so that replicas
	// can be stamped out for actors and for the target
	// network.
	Net anynet.Net

	// Creator is used to allocate vectors.
	Creator anyvec.Creator

	// StepSize is the learning rate used by Update.
	StepSize float64

	// Transformer, if non-nil, pre-processes gradients
	// before they are applied (e.g. anysgd.RMSProp).
	//
	// If nil, vanilla gradients are used.
	Transformer anysgd.Transformer
}

// Evaluate computes the action values at a state.
func (a *AnynetQFunc) Evaluate(state []float64) ([]float64, error) {
	in := anydiff.NewConst(anyvec.Make(a.Creator, state))
	out := a.Net.Apply(in, 1)
	return a.Creator.Float64Slice(out.Output().Data()), nil
}

// Update performs one step of gradient descent on the
// squared error between the predicted values of the given
// actions and the given targets, averaged over the batch.
func (a *AnynetQFunc) Update(states [][]float64, actions []int,
	targets []float64) (err error) {
	defer essentials.AddCtxTo("update Q-function", &err)

	if len(states) != len(actions) || len(states) != len(targets) {
		return errors.New("mismatched batch lengths")
	}
	if len(states) == 0 {
		return nil
	}
	params := anynet.AllParameters(a.Net)
	if len(params) == 0 {
		return errors.New("network has no parameters")
	}

	n := len(states)
	joined := make([]float64, 0, n*len(states[0]))
	for _, s := range states {
		joined = append(joined, s...)
	}
	in := anydiff.NewConst(anyvec.Make(a.Creator, joined))
	out := a.Net.Apply(in, n)
	numActions := out.Output().Len() / n

	// Gather the predicted value of each row's observed
	// action: mask everything else and sum per row.
	maskData := make([]float64, out.Output().Len())
	for i, act := range actions {
		if act < 0 || act >= numActions {
			return fmt.Errorf("action %d out of range", act)
		}
		maskData[i*numActions+act] = 1
	}
	mask := anydiff.NewConst(anyvec.Make(a.Creator, maskData))
	predicted := anydiff.SumCols(&anydiff.Matrix{
		Data: anydiff.Mul(out, mask),
		Rows: n,
		Cols: numActions,
	})

	grad := anydiff.NewGrad(params...)
	predData := a.Creator.Float64Slice(predicted.Output().Data())
	upstreamData := make([]float64, n)
	for i, pred := range predData {
		upstreamData[i] = (pred - targets[i]) / float64(n)
	}
	predicted.Propagate(anyvec.Make(a.Creator, upstreamData), grad)

	if a.Transformer != nil {
		grad = a.Transformer.Transform(grad)
	}
	grad.Scale(a.Creator.MakeNumeric(-a.StepSize))
	grad.AddToVars()
	return nil
}

// Parameters serializes the network's current parameter
// vectors into an opaque snapshot.
func (a *AnynetQFunc) Parameters() (data []byte, err error) {
	defer essentials.AddCtxTo("serialize Q-function parameters", &err)
	var values [][]float64
	for _, p := range anynet.AllParameters(a.Net) {
		values = append(values, a.Creator.Float64Slice(p.Vector.Data()))
	}
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(values); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// SetParameters restores the network's parameters from a
// snapshot produced by Parameters.
//
// The snapshot may come from a different, identically
// structured network.
func (a *AnynetQFunc) SetParameters(data []byte) (err error) {
	defer essentials.AddCtxTo("restore Q-function parameters", &err)
	var values [][]float64
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&values); err != nil {
		return err
	}
	params := anynet.AllParameters(a.Net)
	if len(values) != len(params) {
		return fmt.Errorf("snapshot has %d parameter vectors but the network has %d",
			len(values), len(params))
	}
	for i, p := range params {
		if len(values[i]) != p.Vector.Len() {
			return fmt.Errorf("parameter %d: snapshot has %d components but the "+
				"network has %d", i, len(values[i]), p.Vector.Len())
		}
		p.Vector.SetData(a.Creator.MakeNumericList(values[i]))
	}
	return nil
}

// Copy produces an independent replica with identical
// parameters.
//
// The replica does not share the transformer: actors and
// the target network never take gradient steps.
func (a *AnynetQFunc) Copy() (*AnynetQFunc, error) {
	copied, err := serializer.Copy(a.Net)
	if err != nil {
		return nil, essentials.AddCtx("copy Q-function", err)
	}
	return &AnynetQFunc{
		Net:      copied.(anynet.Net),
		Creator:  a.Creator,
		StepSize: a.StepSize,
	}, nil
}
