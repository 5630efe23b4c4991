package main

import (
	"context"

	"github.com/alecthomas/kong"
	"github.com/wolfeidau/hoteladmin/cmd/hoteladmin/internal/commands"
	"github.com/wolfeidau/hoteladmin/internal/config"
)

var (
	version = "dev"
	cli     struct {
		Serve   commands.ServeCmd   `cmd:"" help:"Run the dashboard host"`
		OTP     commands.OTPCmd     `cmd:"" name:"otp" help:"Email a one time password"`
		Session commands.SessionCmd `cmd:"" help:"Sign in and keep the session alive until interrupted"`
		Debug   bool                `help:"Enable debug mode." env:"HOTELADMIN_DEBUG"`
		Config  kong.ConfigFlag     `help:"Load flag values from a YAML file." type:"existingfile"`
		Version kong.VersionFlag
	}
)

func main() {
	ctx := context.Background()
	cmd := kong.Parse(&cli,
		kong.Name("hoteladmin"),
		kong.Description("Hotel admin dashboard session host."),
		kong.Vars{
			"version": version,
		},
		kong.Configuration(config.YAML, "~/.config/hoteladmin/config.yaml"),
		kong.BindTo(ctx, (*context.Context)(nil)))
	err := cmd.Run(&commands.Globals{Debug: cli.Debug, Version: version})
	cmd.FatalIfErrorf(err)
}
