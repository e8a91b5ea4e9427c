package main

import (
	"context"
	"os"

	"github.com/alecthomas/kong"
	"github.com/rs/zerolog/log"

	"github.com/studysync/studysync/cmd/cli/internal/commands"
	"github.com/studysync/studysync/internal/telemetry"
)

var (
	version = "dev"
	cli     struct {
		Login      commands.LoginCmd      `cmd:"" help:"Sign in to StudySync"`
		Logout     commands.LogoutCmd     `cmd:"" help:"Sign out and clear the local session"`
		Whoami     commands.WhoamiCmd     `cmd:"" help:"Show the signed-in user"`
		Catalog    commands.CatalogCmd    `cmd:"" help:"Browse courses and notes"`
		Access     commands.AccessCmd     `cmd:"" help:"Check access to an item"`
		Buy        commands.BuyCmd        `cmd:"" help:"Purchase a course or notes"`
		Verify     commands.VerifyCmd     `cmd:"" help:"Resume an interrupted payment verification"`
		Calendar   commands.CalendarCmd   `cmd:"" help:"Show the month calendar"`
		Attendance commands.AttendanceCmd `cmd:"" help:"Show attendance for a batch"`
		Debug      bool                   `help:"Enable debug mode."`
		Version    kong.VersionFlag
	}
)

func main() {
	ctx := context.Background()
	cmd := kong.Parse(&cli,
		kong.Vars{
			"version": version,
		},
		kong.BindTo(ctx, (*context.Context)(nil)))

	if os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT") != "" {
		shutdown, err := telemetry.InitTelemetry(ctx, "studysync-cli", version)
		if err != nil {
			log.Warn().Err(err).Msg("telemetry disabled")
		} else {
			defer func() { _ = shutdown(context.Background()) }()
		}
	}

	err := cmd.Run(&commands.Globals{Debug: cli.Debug, Version: version})
	cmd.FatalIfErrorf(err)
}
