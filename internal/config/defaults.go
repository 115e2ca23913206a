package config

const (
	defaultConfigPath            = "~/.config/signverse/config.toml"
	defaultDataDir               = "~/.local/share/signverse"
	defaultWorkDir               = "~/.cache/signverse/work"
	defaultMediaDir              = "~/.cache/signverse/media"
	defaultLibraryDir            = "~/.local/share/signverse/library"
	defaultLogDir                = "~/.local/share/signverse/logs"
	defaultPubMediaURL           = "https://b.jw-cdn.org/apis/pub-media/GETPUBMEDIALINKS"
	defaultPublicationSymbol     = "nwt"
	defaultMarkerPageURL         = "https://wol.jw.org/{locale}/wol/b/{rsconf}/{lib}/nwtsty/{book}/{chapter}"
	defaultUserAgent             = "signverse/dev"
	defaultRequestTimeoutSeconds = 30
	defaultScrapeRatePerSecond   = 1.0
	defaultScrapeBurst           = 2
	defaultMarkersTTLMinutes     = 60
	defaultBookTTLMinutes        = 60
	defaultProbeTimeoutSeconds   = 120
	defaultRenderTimeoutSeconds  = 300
	defaultRenderParallelism     = 2
	defaultQuality               = "720p"
	defaultMinFreeGiB            = 2
	defaultLockTimeoutSeconds    = 600
	defaultProduceTimeoutSeconds = 900
	defaultKeepMediaFiles        = 20
	defaultCollectorSchedule     = "@every 6h"
	defaultCollectorGraceHours   = 72
	defaultLogFormat             = "auto"
	defaultLogLevel              = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir:    defaultDataDir,
			WorkDir:    defaultWorkDir,
			MediaDir:   defaultMediaDir,
			LibraryDir: defaultLibraryDir,
			LogDir:     defaultLogDir,
		},
		Sources: Sources{
			PubMediaURL:           defaultPubMediaURL,
			PublicationSymbol:     defaultPublicationSymbol,
			MarkerPageURL:         defaultMarkerPageURL,
			UserAgent:             defaultUserAgent,
			RequestTimeoutSeconds: defaultRequestTimeoutSeconds,
			ScrapeRatePerSecond:   defaultScrapeRatePerSecond,
			ScrapeBurst:           defaultScrapeBurst,
		},
		Markers: Markers{
			TTLMinutes:          defaultMarkersTTLMinutes,
			BookTTLMinutes:      defaultBookTTLMinutes,
			ProbeTimeoutSeconds: defaultProbeTimeoutSeconds,
			ProbeEnabled:        true,
		},
		Render: Render{
			FFmpegBinary:   "ffmpeg",
			FFprobeBinary:  "ffprobe",
			TimeoutSeconds: defaultRenderTimeoutSeconds,
			Parallelism:    defaultRenderParallelism,
			DefaultQuality: defaultQuality,
			MinFreeGiB:     defaultMinFreeGiB,
		},
		Cache: Cache{
			LockTimeoutSeconds:    defaultLockTimeoutSeconds,
			ProduceTimeoutSeconds: defaultProduceTimeoutSeconds,
			KeepMediaFiles:        defaultKeepMediaFiles,
		},
		Collector: Collector{
			Schedule:   defaultCollectorSchedule,
			GraceHours: defaultCollectorGraceHours,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
