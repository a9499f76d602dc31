package service

import (
	"fmt"
	"strings"

	"github.com/robfig/cron/v3"
)

// ParseCron validates a 5-field cron expression or an @macro/@every spec.
func ParseCron(expr string) error {
	e := strings.TrimSpace(expr)
	if e == "" {
		return fmt.Errorf("empty cron expression")
	}

	// Macros / @every handled by ParseStandard (it also supports plain 5-field specs).
	if strings.HasPrefix(e, "@") {
		_, err := cron.ParseStandard(e)
		return err
	}

	parser5 := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

	_, err := parser5.Parse(e)
	return err
}
