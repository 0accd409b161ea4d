package main

import (
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/openrota/openrota/pkg/core/model"
	"github.com/openrota/openrota/pkg/core/packer"
	"github.com/openrota/openrota/pkg/core/recurrence"
	"github.com/openrota/openrota/pkg/store/memstore"
)

// fixture is the YAML shape consumed by the seed command. Dates are
// calendar days ("2006-01-02"), one-off task instants are RFC 3339.
type fixture struct {
	Event struct {
		Name        string   `yaml:"name"`
		Description string   `yaml:"description"`
		StartDate   string   `yaml:"startDate"`
		EndDate     string   `yaml:"endDate"`
		MinHours    float64  `yaml:"minHours"`
		MaxHours    *float64 `yaml:"maxHours"`
	} `yaml:"event"`
	TaskTypes []struct {
		Name  string `yaml:"name"`
		Color string `yaml:"color"`
	} `yaml:"taskTypes"`
	Templates []struct {
		Name        string `yaml:"name"`
		Description string `yaml:"description"`
		Type        string `yaml:"type"`
		Location    string `yaml:"location"`
		StartClock  string `yaml:"startClock"`
		DurationMin int    `yaml:"durationMin"`
		Required    int    `yaml:"required"`
		RRule       string `yaml:"rrule"`
	} `yaml:"templates"`
	Tasks []struct {
		Name        string `yaml:"name"`
		Description string `yaml:"description"`
		Type        string `yaml:"type"`
		Location    string `yaml:"location"`
		Start       string `yaml:"start"`
		End         string `yaml:"end"`
		Required    int    `yaml:"required"`
		GroupKey    string `yaml:"groupKey"`
	} `yaml:"tasks"`
}

func seedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed <fixture.yaml>",
		Short: "Expand a rota fixture and print its day grids",
		Long: `Loads an event fixture (event, task types, recurring shift templates,
one-off tasks), expands the templates across the event's date range and
prints the packed column grid for every day.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSeed(args[0])
		},
	}
}

func runSeed(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read fixture: %w", err)
	}
	var fx fixture
	if err := yaml.Unmarshal(data, &fx); err != nil {
		return fmt.Errorf("failed to parse fixture: %w", err)
	}

	event, err := fx.event()
	if err != nil {
		return err
	}

	st := memstore.New()
	if err := st.InsertEvent(app.ctx, event); err != nil {
		return err
	}

	// Task types are referenced from templates and tasks by name.
	typeIDs := make(map[string]string, len(fx.TaskTypes))
	for _, tt := range fx.TaskTypes {
		id := uuid.New().String()
		if err := st.InsertTaskType(app.ctx, model.TaskType{
			ID: id, EventID: event.ID, Name: tt.Name, Color: tt.Color,
		}); err != nil {
			return err
		}
		typeIDs[tt.Name] = id
	}

	total := 0
	for _, tpl := range fx.Templates {
		tasks, err := recurrence.Expand(recurrence.Template{
			Name:        tpl.Name,
			Description: tpl.Description,
			TypeID:      typeIDs[tpl.Type],
			Location:    tpl.Location,
			StartClock:  tpl.StartClock,
			DurationMin: tpl.DurationMin,
			Required:    tpl.Required,
			RRule:       tpl.RRule,
		}, event, time.Local)
		if err != nil {
			return fmt.Errorf("template %q: %w", tpl.Name, err)
		}
		for _, task := range tasks {
			if err := st.InsertTask(app.ctx, task); err != nil {
				return err
			}
		}
		total += len(tasks)
	}

	for _, ft := range fx.Tasks {
		start, err := time.Parse(time.RFC3339, ft.Start)
		if err != nil {
			return fmt.Errorf("task %q start: %w", ft.Name, err)
		}
		end, err := time.Parse(time.RFC3339, ft.End)
		if err != nil {
			return fmt.Errorf("task %q end: %w", ft.Name, err)
		}
		if err := st.InsertTask(app.ctx, model.Task{
			ID:          uuid.New().String(),
			EventID:     event.ID,
			TypeID:      typeIDs[ft.Type],
			Name:        ft.Name,
			Description: ft.Description,
			Location:    ft.Location,
			Start:       start,
			End:         end,
			Required:    ft.Required,
			GroupKey:    ft.GroupKey,
		}); err != nil {
			return fmt.Errorf("task %q: %w", ft.Name, err)
		}
		total++
	}

	app.logger.Info("fixture seeded",
		zap.String("event", event.Name),
		zap.Int("task_count", total))

	records, err := st.ListTasks(app.ctx, event.ID)
	if err != nil {
		return err
	}

	fmt.Printf("%s (%s to %s)\n", event.Name,
		event.StartDate.Format("2 Jan"), event.EndDate.Format("2 Jan 2006"))
	for _, day := range event.Days() {
		fmt.Printf("\n%s\n", day.Format("Monday 2 January"))
		blocks := packer.Pack(day, records)
		if len(blocks) == 0 {
			fmt.Println("  (no shifts)")
			continue
		}
		for _, b := range blocks {
			fmt.Printf("  [col %d/%d] %s  %s-%s  %d/%d volunteers\n",
				b.Column+1, b.Columns, b.ID,
				b.Start.Format("15:04"), b.End.Format("15:04"),
				b.Assigned, b.Required)
		}
	}

	return nil
}

func (fx *fixture) event() (model.Event, error) {
	start, err := time.ParseInLocation(time.DateOnly, fx.Event.StartDate, time.Local)
	if err != nil {
		return model.Event{}, fmt.Errorf("event startDate: %w", err)
	}
	end, err := time.ParseInLocation(time.DateOnly, fx.Event.EndDate, time.Local)
	if err != nil {
		return model.Event{}, fmt.Errorf("event endDate: %w", err)
	}
	return model.Event{
		ID:          uuid.New().String(),
		Name:        fx.Event.Name,
		Description: fx.Event.Description,
		StartDate:   start,
		EndDate:     end,
		MinHours:    fx.Event.MinHours,
		MaxHours:    fx.Event.MaxHours,
	}, nil
}
