package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
	// Schedule timezones must resolve on hosts without a zoneinfo database.
	_ "time/tzdata"

	"github.com/go-playground/validator/v10"

	"github.com/jonathan/kids-video-pipeline/internal/errkind"
)

var weekdays = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

// Validate checks struct tags and cross-field rules. Every failure is a
// config-kind error so callers can fail fast at startup.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
			}
			return errkind.Configf("config", "invalid config: %s", strings.Join(msgs, "; "))
		}
		return errkind.Config("config", fmt.Errorf("invalid config: %w", err))
	}

	seen := make(map[string]bool, len(c.Languages))
	for _, lang := range c.Languages {
		if seen[lang.Code] {
			return errkind.Configf("config", "duplicate language code %q", lang.Code)
		}
		seen[lang.Code] = true
	}

	if _, err := c.ScheduleWeekdays(); err != nil {
		return err
	}
	if _, _, err := c.ScheduleClock(); err != nil {
		return err
	}
	if _, err := time.LoadLocation(c.Schedule.Timezone); err != nil {
		return errkind.Configf("config", "invalid schedule timezone %q", c.Schedule.Timezone)
	}

	if c.Instagram.Enabled && c.Instagram.Mode == "graph" && c.Instagram.PublicBaseURL == "" {
		return errkind.Configf("config", "instagram graph mode requires public_base_url for media hosting")
	}
	if c.Notifications.Email.Enabled && c.Notifications.Email.RecipientEmail == "" {
		return errkind.Configf("config", "email notifications require recipient_email")
	}
	return nil
}

// ScheduleWeekdays parses the configured upload days.
func (c *Config) ScheduleWeekdays() ([]time.Weekday, error) {
	days := make([]time.Weekday, 0, len(c.Schedule.UploadDays))
	for _, name := range c.Schedule.UploadDays {
		d, ok := weekdays[strings.ToLower(strings.TrimSpace(name))]
		if !ok {
			return nil, errkind.Configf("config", "invalid upload day %q", name)
		}
		days = append(days, d)
	}
	return days, nil
}

// ScheduleClock parses upload_time as HH:MM.
func (c *Config) ScheduleClock() (hour, minute int, err error) {
	t, perr := time.Parse("15:04", c.Schedule.UploadTime)
	if perr != nil {
		return 0, 0, errkind.Configf("config", "invalid upload_time %q, expected HH:MM", c.Schedule.UploadTime)
	}
	return t.Hour(), t.Minute(), nil
}
