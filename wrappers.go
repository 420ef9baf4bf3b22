package apex

// MaxStepsEnv wraps an Env and ends episodes early if
// they run longer than MaxSteps timesteps.
type MaxStepsEnv struct {
	Env
	MaxSteps int

	steps int
}

// Reset resets the environment.
func (m *MaxStepsEnv) Reset() ([]float64, error) {
	m.steps = 0
	return m.Env.Reset()
}

// Step takes a step in the environment.
func (m *MaxStepsEnv) Step(action []float64) ([]float64, float64, bool, error) {
	obs, rew, done, err := m.Env.Step(action)
	m.steps++
	if m.steps == m.MaxSteps {
		done = true
	}
	return obs, rew, done, err
}

// ObsFilterEnv wraps an Env and passes every observation
// through a pure preprocessing function before an actor
// sees it.
//
// Use it to compose raw-observation preprocessing, such
// as grayscaling or downsampling, ahead of an actor loop.
type ObsFilterEnv struct {
	Env

	// Filter maps a raw observation to its preprocessed
	// form. It must not modify its input.
	Filter func(observation []float64) []float64
}

// Reset resets the environment.
func (o *ObsFilterEnv) Reset() ([]float64, error) {
	obs, err := o.Env.Reset()
	if err != nil {
		return nil, err
	}
	return o.Filter(obs), nil
}

// Step takes a step in the environment.
func (o *ObsFilterEnv) Step(action []float64) ([]float64, float64, bool, error) {
	obs, rew, done, err := o.Env.Step(action)
	if err != nil {
		return nil, 0, false, err
	}
	return o.Filter(obs), rew, done, nil
}
