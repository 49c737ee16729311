package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"kindred-backend/internal/models"
	"kindred-backend/internal/services"

	"gopkg.in/yaml.v3"
)

// userWriter is a user store that also accepts profile snapshots
type userWriter interface {
	services.UserStore
	Put(ctx context.Context, user *models.User) error
}

// seedFile lists user profiles owned by the external profile service
type seedFile struct {
	Users []seedUser `yaml:"users"`
}

type seedUser struct {
	ID            string            `yaml:"id"`
	Age           *int              `yaml:"age"`
	MaritalStatus *string           `yaml:"marital_status"`
	Employment    *string           `yaml:"employment"`
	Hobbies       []string          `yaml:"hobbies"`
	Location      *string           `yaml:"location"`
	HasBaby       *bool             `yaml:"has_baby"`
	BabyBirthDate string            `yaml:"baby_birth_date"`
	CareerField   *string           `yaml:"career_field"`
	Visibility    map[string]string `yaml:"visibility"`
}

func (s seedUser) toModel(now time.Time) (*models.User, error) {
	if s.ID == "" {
		return nil, errors.New("user without id")
	}
	u := &models.User{
		ID:            s.ID,
		Age:           s.Age,
		MaritalStatus: s.MaritalStatus,
		Employment:    s.Employment,
		Hobbies:       s.Hobbies,
		Location:      s.Location,
		HasBaby:       s.HasBaby,
		CareerField:   s.CareerField,
		CreatedAt:     now,
	}
	if s.BabyBirthDate != "" {
		t, err := time.Parse(time.DateOnly, s.BabyBirthDate)
		if err != nil {
			return nil, fmt.Errorf("user %s: invalid baby_birth_date: %w", s.ID, err)
		}
		u.BabyBirthDate = &t
	}
	if len(s.Visibility) > 0 {
		u.Visibility = make(map[string]models.Visibility, len(s.Visibility))
		for field, v := range s.Visibility {
			vis := models.Visibility(v)
			switch vis {
			case models.VisibleToAnonymous, models.VisibleToFriend, models.VisibilityHidden:
			default:
				return nil, fmt.Errorf("user %s: unknown visibility %q for %s", s.ID, v, field)
			}
			u.Visibility[field] = vis
		}
	}
	return u, nil
}

// seedUsers loads profiles from a YAML file into users
func seedUsers(ctx context.Context, path string, users userWriter) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("failed to read seed file: %w", err)
	}

	var f seedFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return 0, fmt.Errorf("failed to parse seed file: %w", err)
	}

	now := time.Now()
	for _, s := range f.Users {
		u, err := s.toModel(now)
		if err != nil {
			return 0, err
		}
		if err := users.Put(ctx, u); err != nil {
			return 0, err
		}
	}
	return len(f.Users), nil
}
