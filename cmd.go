package main

import "time"

// storageFlags locate the databases and the backup directory.
type storageFlags struct {
	Catalog string `help:"catalog database path, holds backup records and settings" short:"d" required:""`
	Live    string `help:"live application database path" short:"l" required:""`
	Dir     string `help:"backup directory path" short:"D" required:""`
}

type Command struct {
	Version struct{} `cmd:"" help:"Print version information."`
	Backup  struct {
		Storage storageFlags `embed:""`
		Type    string       `help:"backup type, automatic backups apply the configured retention" enum:"manual,auto" default:"manual"`
	} `cmd:"" help:"Manually back up the live database."`
	List struct {
		Storage storageFlags `embed:""`
		JSON    bool         `help:"print backups as JSON"`
	} `cmd:"" help:"List backups, newest first."`
	Delete struct {
		Storage storageFlags `embed:""`
		ID      string       `arg:"" help:"backup id"`
	} `cmd:"" help:"Delete a backup and its file."`
	Restore struct {
		Storage storageFlags `embed:""`
		ID      string       `arg:"" help:"backup id"`
	} `cmd:"" help:"Replace the live database with a backup."`
	Clean struct {
		Storage  storageFlags `embed:""`
		MaxCount int          `help:"number of backups to keep, the configured maximum when zero" short:"n"`
	} `cmd:"" help:"Manually clean up old backups."`
	Settings struct {
		Get struct {
			Storage storageFlags `embed:""`
			Key     string       `help:"print only the stored value of this key, or its default when unset" short:"k"`
		} `cmd:"" help:"Print the automatic backup settings."`
		Set struct {
			Storage storageFlags `embed:""`
			Values  []string     `arg:"" help:"settings as key=value, e.g. backup_enabled=true"`
		} `cmd:"" help:"Change the automatic backup settings."`
	} `cmd:"" help:"Show or change the automatic backup settings."`
	Daemon struct {
		Storage       storageFlags  `embed:""`
		Config        string        `help:"JSON settings file, applied at start and whenever it changes" short:"c" type:"path"`
		WatchInterval time.Duration `help:"settings file polling interval" default:"30s"`
		Listen        string        `help:"HTTP API listen address, disabled when empty" placeholder:"ADDR"`
		RateLimit     int           `help:"HTTP requests per minute and client changing backups or settings, unlimited when zero" default:"30"`
		RunNow        bool          `help:"run an automatic backup right after start"`
	} `cmd:"" help:"Run the backup service."`
}
