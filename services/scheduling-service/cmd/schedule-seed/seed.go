package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/md-rashed-zaman/slotbook/services/scheduling-service/internal/model"
	"gopkg.in/yaml.v3"
)

// SeedFile is the YAML document accepted by apply and validate.
type SeedFile struct {
	DefaultService string                     `yaml:"default_service"`
	BusinessHours  map[string]*model.DayHours `yaml:"business_hours"`
	Services       []SeedService              `yaml:"services"`
	Employees      []SeedEmployee             `yaml:"employees"`
}

type SeedService struct {
	ID              string `yaml:"id"`
	Name            string `yaml:"name"`
	DurationMinutes int    `yaml:"duration_minutes"`
	Inactive        bool   `yaml:"inactive"`
}

type SeedEmployee struct {
	ID       string                   `yaml:"id"`
	Name     string                   `yaml:"name"`
	Email    string                   `yaml:"email"`
	Archived bool                     `yaml:"archived"`
	Shifts   map[string][]model.Shift `yaml:"shifts"`
}

// Plan is a validated seed ready to be written.
type Plan struct {
	DefaultService string
	Hours          model.BusinessHours
	Services       []model.Service
	Employees      []model.Employee
}

// Writer is the subset of the storage repository the seed needs.
type Writer interface {
	UpsertService(ctx context.Context, s model.Service) error
	UpsertEmployee(ctx context.Context, e model.Employee) error
	SaveSettings(ctx context.Context, hours model.BusinessHours, defaultServiceID string) (model.Settings, error)
}

// Invalidator drops cached availability once a seed changes hours or services.
type Invalidator interface {
	InvalidateAll(ctx context.Context)
}

func loadSeed(path string) (Plan, error) {
	f, err := os.Open(path)
	if err != nil {
		return Plan{}, err
	}
	defer f.Close()
	return parseSeed(f)
}

func parseSeed(r io.Reader) (Plan, error) {
	var seed SeedFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&seed); err != nil {
		return Plan{}, fmt.Errorf("parse seed: %w", err)
	}
	return seed.plan()
}

func (s SeedFile) plan() (Plan, error) {
	hours, err := model.NewBusinessHours(s.BusinessHours)
	if err != nil {
		return Plan{}, fmt.Errorf("business_hours: %w", err)
	}
	p := Plan{DefaultService: strings.TrimSpace(s.DefaultService), Hours: hours}

	seen := map[string]bool{}
	for i, svc := range s.Services {
		id := strings.TrimSpace(svc.ID)
		switch {
		case id == "":
			return Plan{}, fmt.Errorf("services[%d]: id is required", i)
		case seen[id]:
			return Plan{}, fmt.Errorf("services[%d]: duplicate id %q", i, id)
		case svc.DurationMinutes <= 0 || svc.DurationMinutes > 24*60:
			return Plan{}, fmt.Errorf("service %q: duration_minutes must be between 1 and 1440", id)
		}
		seen[id] = true
		name := strings.TrimSpace(svc.Name)
		if name == "" {
			name = id
		}
		p.Services = append(p.Services, model.Service{
			ID:              id,
			Name:            name,
			DurationMinutes: svc.DurationMinutes,
			IsActive:        !svc.Inactive,
		})
	}
	if p.DefaultService != "" && !seen[p.DefaultService] {
		return Plan{}, fmt.Errorf("default_service %q is not listed under services", p.DefaultService)
	}

	employees := map[string]bool{}
	for i, e := range s.Employees {
		id := strings.TrimSpace(e.ID)
		if id == "" {
			return Plan{}, fmt.Errorf("employees[%d]: id is required", i)
		}
		if employees[id] {
			return Plan{}, fmt.Errorf("employees[%d]: duplicate id %q", i, id)
		}
		employees[id] = true
		schedule, err := model.NewWeeklySchedule(e.Shifts)
		if err != nil {
			return Plan{}, fmt.Errorf("employee %q: %w", id, err)
		}
		status := model.EmployeeActive
		if e.Archived {
			status = model.EmployeeArchived
		}
		p.Employees = append(p.Employees, model.Employee{
			ID:       id,
			Name:     strings.TrimSpace(e.Name),
			Email:    strings.TrimSpace(e.Email),
			Status:   status,
			Schedule: schedule,
		})
	}
	return p, nil
}

// apply writes services before settings so the default service reference resolves. The cache,
// if any, is flushed only after every write succeeded.
func (p Plan) apply(ctx context.Context, w Writer, inv Invalidator) (model.Settings, error) {
	for _, svc := range p.Services {
		if err := w.UpsertService(ctx, svc); err != nil {
			return model.Settings{}, fmt.Errorf("service %q: %w", svc.ID, err)
		}
	}
	settings, err := w.SaveSettings(ctx, p.Hours, p.DefaultService)
	if err != nil {
		return model.Settings{}, fmt.Errorf("settings: %w", err)
	}
	for _, e := range p.Employees {
		if err := w.UpsertEmployee(ctx, e); err != nil {
			return model.Settings{}, fmt.Errorf("employee %q: %w", e.ID, err)
		}
	}
	if inv != nil {
		inv.InvalidateAll(ctx)
	}
	return settings, nil
}
