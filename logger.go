package apex

import "log"

// A Logger logs status messages which are produced while
// actors and the learner run.
type Logger interface {
	LogEpisode(actorID, steps int, reward float64)
	LogSync(actorID int, version ParamVersion)
	LogUpdate(step int, meanPriority float64)
	LogWarning(message string)
}

// StandardLogger is a Logger which uses the log package.
//
// A field of name <N> controls whether or not the Log<N>
// method does anything. Warnings are always logged.
type StandardLogger struct {
	Episode bool
	Sync    bool
	Update  bool
}

// LogEpisode logs the result of an episode.
func (s *StandardLogger) LogEpisode(actorID, steps int, reward float64) {
	if s.Episode {
		log.Printf("episode: actor=%d steps=%d reward=%f", actorID, steps, reward)
	}
}

// LogSync logs a parameter re-read by an actor.
func (s *StandardLogger) LogSync(actorID int, version ParamVersion) {
	if s.Sync {
		log.Printf("sync: actor=%d version=%d", actorID, version)
	}
}

// LogUpdate logs the result of one learner update.
func (s *StandardLogger) LogUpdate(step int, meanPriority float64) {
	if s.Update {
		log.Printf("update: step=%d priority=%f", step, meanPriority)
	}
}

// LogWarning logs a recoverable problem.
func (s *StandardLogger) LogWarning(message string) {
	log.Printf("warning: %s", message)
}
