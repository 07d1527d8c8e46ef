// Package deploy implements the post-acceptance deployment validation gate:
// a simulated security audit that can veto an otherwise accepted submission.
package deploy

import (
	"fmt"
	"math/rand"
	"sync"

	"go.uber.org/zap"

	"codejudge/internal/logging"
)

const auditFailureOdds = 0.05

// Validator runs the simulated audit. The random source is injectable so
// tests can force either branch.
type Validator struct {
	enabled  bool
	minScore int
	log      *zap.Logger

	mu  sync.Mutex
	rng *rand.Rand
}

// New builds a validator seeded from src. Pass nil to use a time-seeded
// source.
func New(enabled bool, minScore int, src rand.Source) *Validator {
	if src == nil {
		src = rand.NewSource(rand.Int63())
	}
	return &Validator{
		enabled:  enabled,
		minScore: minScore,
		log:      logging.L().Named("deploy"),
		rng:      rand.New(src),
	}
}

// Validate returns whether the submission clears the deployment gate and the
// message to attach. Only called for accepted submissions.
func (v *Validator) Validate() (bool, string) {
	if !v.enabled {
		return true, "Deployment validation skipped by configuration."
	}

	v.mu.Lock()
	roll := v.rng.Float64()
	score := v.minScore - 10 + v.rng.Intn(100-(v.minScore-10)+1)
	v.mu.Unlock()

	if roll < auditFailureOdds {
		v.log.Warn("deployment validation veto", zap.String("reason", "dependency audit"))
		return false, "Critical dependency failed during security audit (Vulnerability CVE-2025-1337 detected)."
	}

	if score < v.minScore {
		v.log.Warn("deployment validation veto",
			zap.Int("score", score), zap.Int("min", v.minScore))
		return false, fmt.Sprintf(
			"Code failed static analysis (Security Score: %d/%d). Check for excessive complexity or unsafe functions.",
			score, v.minScore)
	}

	return true, "Deployment validation successful."
}
