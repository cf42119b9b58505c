package subscription

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Limits holds the per-tier quota configuration. Values load from the
// environment by default; a YAML plans file can override them for
// deployments that version their plan catalog separately.
type Limits struct {
	FreeUploadsPerWeek     int `env:"FREE_UPLOADS_PER_WEEK" envDefault:"1" yaml:"free_uploads_per_week"`
	ProUploadsPerWeek      int `env:"PRO_UPLOADS_PER_WEEK" envDefault:"10" yaml:"pro_uploads_per_week"`
	FreeQuizzesPerMaterial int `env:"FREE_QUIZZES_PER_MATERIAL" envDefault:"3" yaml:"free_quizzes_per_material"`
	ProQuizzesPerMaterial  int `env:"PRO_QUIZZES_PER_MATERIAL" envDefault:"10" yaml:"pro_quizzes_per_material"`
}

// DefaultLimits returns the stock free/pro quota set.
func DefaultLimits() Limits {
	return Limits{
		FreeUploadsPerWeek:     1,
		ProUploadsPerWeek:      10,
		FreeQuizzesPerMaterial: 3,
		ProQuizzesPerMaterial:  10,
	}
}

// UploadsPerWeek returns the weekly upload quota for a tier.
func (l Limits) UploadsPerWeek(t Tier) int {
	if t == TierPro {
		return l.ProUploadsPerWeek
	}
	return l.FreeUploadsPerWeek
}

// QuizzesPerMaterial returns the lifetime per-material quiz quota for a tier.
func (l Limits) QuizzesPerMaterial(t Tier) int {
	if t == TierPro {
		return l.ProQuizzesPerMaterial
	}
	return l.FreeQuizzesPerMaterial
}

// Validate catches configuration mistakes early, before any request hits
// the quota path.
func (l Limits) Validate() error {
	if l.FreeUploadsPerWeek < 0 || l.ProUploadsPerWeek < 0 ||
		l.FreeQuizzesPerMaterial < 0 || l.ProQuizzesPerMaterial < 0 {
		return errors.Join(ErrFailedToLoadLimits, fmt.Errorf("negative quota in %+v", l))
	}
	return nil
}

// LoadLimitsFile reads a YAML plans file into a Limits value. Fields absent
// from the file keep the defaults.
func LoadLimitsFile(path string) (Limits, error) {
	limits := DefaultLimits()

	data, err := os.ReadFile(path)
	if err != nil {
		return limits, errors.Join(ErrFailedToLoadLimits, err)
	}
	if err := yaml.Unmarshal(data, &limits); err != nil {
		return limits, errors.Join(ErrFailedToLoadLimits, err)
	}
	if err := limits.Validate(); err != nil {
		return limits, err
	}
	return limits, nil
}
