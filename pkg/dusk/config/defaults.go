package config

import "time"

// Defaults for every configuration key.
const (
	DefaultPath          = "."
	DefaultDepth         = -1
	DefaultSort          = "size"
	DefaultStrategy      = "default"
	DefaultCacheBackend  = "file"
	DefaultCacheVerify   = "files"
	DefaultCacheTTL      = 7 * 24 * time.Hour
	DefaultCheckInterval = 200 * time.Millisecond
	DefaultInodeMode     = "total"
	DefaultOutputFormat  = "auto"
	DefaultRetentionDays = 30
	DefaultWatchDebounce = 2 * time.Second
	DefaultLogLevel      = "info"
	DefaultLogMaxSize    = "10MiB"
	DefaultLogMaxAge     = 30
	DefaultLogMaxBackups = 5
	envPrefix            = "DUSK"
	configName           = "config"
	configType           = "yaml"
	appName              = "dusk"
)

// DefaultExclusions are pseudo filesystems that never hold disk usage.
var DefaultExclusions = []string{"/proc", "/sys", "/dev"}

const defaultFile = `# dusk configuration

# Directory scanned when none is given
default_path: .

# Output depth; -1 is unlimited, 0 shows only the root
depth: -1

# Presentation order: size or name
sort: size

show_files: false
show_owner: false
show_inodes: false

# Glob patterns; a bare name such as node_modules matches at any depth
exclude:
  - /proc
  - /sys
  - /dev

# Inode column: total (all descendants) or direct (children only)
inodes: total

threads:
  # default, fixed, cpus-minus-one, io-heavy, work-stealing
  strategy: default
  # 0 lets the strategy decide
  width: 0

cache:
  enabled: true
  # Whole cache is discarded once older than this
  ttl: 168h
  # file or badger
  backend: file
  # files re-stats every cached entry; dirs only cached directories
  verify: files
  # User-level cache directory (empty means $XDG_CACHE_HOME/dusk)
  dir: ""

memory:
  # Abort with a partial result above this resident size; empty is unlimited
  limit: ""
  check_interval: 200ms

output:
  # auto, pretty, plain, csv, json, yaml
  format: auto

history:
  enabled: true
  retention_days: 30

logging:
  level: info
  path: ""
  rotation:
    max_size: 10MiB
    max_age: 30
    max_backups: 5
    daily: true
  components:
    scanner: info
    cache: info
`
