package config

import "time"

type VFSConfig struct {
	MaxOpenFDs         int    `yaml:"max_open_fds" env-default:"4096"`
	NameTableSize      int    `yaml:"name_table_size" env-default:"4096"`
	EnforcePermissions bool   `yaml:"enforce_permissions" env-default:"false"`
	MaxReadSize        int    `yaml:"max_read_size" env-default:"16777216"`
	PersistMountpoint  string `yaml:"persist_mountpoint" env-default:"/home/web_user/persist"`
	PersistToken       string `yaml:"persist_token" env:"VFS_PERSIST_TOKEN" env-default:"default"`
	// SyncInterval of zero disables periodic syncs.
	SyncInterval time.Duration `yaml:"sync_interval" env-default:"0s"`
}
