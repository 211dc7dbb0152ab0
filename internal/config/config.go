// Package config loads the TOML configuration shared by all subcommands.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"windtiler/internal/fetch"
	"windtiler/internal/indexer"
	"windtiler/internal/monitor"
	"windtiler/internal/projection"
	"windtiler/internal/raster"
	"windtiler/internal/server"
)

// EnvPrefix prefixes environment overrides, e.g. WINDTILER_SERVER_PORT.
const EnvPrefix = "WINDTILER"

type Config struct {
	App struct {
		Version string `mapstructure:"version"`
		Title   string `mapstructure:"title"`
	} `mapstructure:"app"`
	Output struct {
		LogDir         string `mapstructure:"logDir"`
		OutputTerminal bool   `mapstructure:"outputTerminal"`
	} `mapstructure:"output"`
	Projection struct {
		CentralMeridian float64 `mapstructure:"centralMeridian"`
		ScaleFactor     float64 `mapstructure:"scaleFactor"`
		FalseEasting    float64 `mapstructure:"falseEasting"`
		FalseNorthing   float64 `mapstructure:"falseNorthing"`
	} `mapstructure:"projection"`
	Indexer struct {
		Radius float64 `mapstructure:"radius"`
		// Sites is a GeoJSON file of Point features; it replaces Site
		// when set.
		Sites    string      `mapstructure:"sites"`
		Site     []SiteEntry `mapstructure:"site"`
		Manifest string      `mapstructure:"manifest"`
	} `mapstructure:"indexer"`
	Fetch struct {
		Dataset    string        `mapstructure:"dataset"`
		ZIPBaseURL string        `mapstructure:"zipBaseURL"`
		LAZBaseURL string        `mapstructure:"lazBaseURL"`
		OutputDir  string        `mapstructure:"outputDir"`
		Timeout    time.Duration `mapstructure:"timeout"`
		Delay      time.Duration `mapstructure:"delay"`
	} `mapstructure:"fetch"`
	Convert struct {
		TileSize    float64 `mapstructure:"tileSize"`
		Resolution  float64 `mapstructure:"resolution"`
		OutputDir   string  `mapstructure:"outputDir"`
		ProgressLog string  `mapstructure:"progressLog"`
	} `mapstructure:"convert"`
	Server struct {
		Port      int    `mapstructure:"port"`
		Directory string `mapstructure:"directory"`
		TilesDir  string `mapstructure:"tilesDir"`
	} `mapstructure:"server"`
	Monitor struct {
		ArchiveDir  string        `mapstructure:"archiveDir"`
		TilesDir    string        `mapstructure:"tilesDir"`
		ProgressLog string        `mapstructure:"progressLog"`
		Expected    int           `mapstructure:"expected"`
		Interval    time.Duration `mapstructure:"interval"`
	} `mapstructure:"monitor"`
}

// SiteEntry is one [[indexer.site]] table.
type SiteEntry struct {
	Name string  `mapstructure:"name"`
	Lat  float64 `mapstructure:"lat"`
	Lon  float64 `mapstructure:"lon"`
}

func setDefaults(v *viper.Viper) {
	utm := projection.UTM33N()

	v.SetDefault("app.version", "v0.1.0")
	v.SetDefault("app.title", "windtiler")
	v.SetDefault("output.logDir", "")
	v.SetDefault("output.outputTerminal", true)

	v.SetDefault("projection.centralMeridian", utm.CentralMeridian)
	v.SetDefault("projection.scaleFactor", utm.ScaleFactor)
	v.SetDefault("projection.falseEasting", utm.FalseEasting)
	v.SetDefault("projection.falseNorthing", utm.FalseNorthing)

	v.SetDefault("indexer.radius", 3000.0)
	v.SetDefault("indexer.sites", "")
	v.SetDefault("indexer.manifest", "tiles/windrad-tiles.txt")

	v.SetDefault("fetch.dataset", "zip")
	v.SetDefault("fetch.zipBaseURL", "https://data.geobasis-bb.de/geobasis/daten/als/laz")
	v.SetDefault("fetch.lazBaseURL", "https://data.geobasis-bb.de/geobasis/daten/dom/laz")
	v.SetDefault("fetch.outputDir", "laz_downloads")
	v.SetDefault("fetch.timeout", 60*time.Second)
	v.SetDefault("fetch.delay", 500*time.Millisecond)

	v.SetDefault("convert.tileSize", 1000.0)
	v.SetDefault("convert.resolution", 1.0)
	v.SetDefault("convert.outputDir", "tiles_output")
	v.SetDefault("convert.progressLog", "logs/convert.log")

	v.SetDefault("server.port", 8000)
	v.SetDefault("server.directory", ".")
	v.SetDefault("server.tilesDir", "")

	v.SetDefault("monitor.archiveDir", "laz_downloads")
	v.SetDefault("monitor.tilesDir", "tiles_output")
	v.SetDefault("monitor.progressLog", "logs/convert.log")
	v.SetDefault("monitor.expected", 0)
	v.SetDefault("monitor.interval", 5*time.Second)
}

// Load reads the TOML file at path on top of the defaults. An empty path
// loads defaults only. A .env file in the working directory, when
// present, is loaded into the environment first; WINDTILER_* variables
// override both file and defaults.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("config file %s: %w", path, err)
		}
		v.SetConfigType(strings.TrimPrefix(filepath.Ext(path), "."))
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", path, err)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return &c, nil
}

// ProjectionParams is the configured transverse Mercator projection on
// the WGS84 ellipsoid.
func (c *Config) ProjectionParams() projection.Projection {
	p := projection.UTM33N()
	p.CentralMeridian = c.Projection.CentralMeridian
	p.ScaleFactor = c.Projection.ScaleFactor
	p.FalseEasting = c.Projection.FalseEasting
	p.FalseNorthing = c.Projection.FalseNorthing
	return p
}

// LoadSites returns the sites of the GeoJSON file when one is configured,
// the inline [[indexer.site]] tables otherwise.
func (c *Config) LoadSites() ([]indexer.Site, error) {
	if c.Indexer.Sites != "" {
		return indexer.LoadSites(c.Indexer.Sites)
	}
	sites := make([]indexer.Site, 0, len(c.Indexer.Site))
	for i, e := range c.Indexer.Site {
		name := e.Name
		if name == "" {
			name = fmt.Sprintf("site-%d", i+1)
		}
		sites = append(sites, indexer.Site{
			Name:  name,
			Point: projection.GeoPoint{Lat: e.Lat, Lon: e.Lon},
		})
	}
	return sites, nil
}

// FetchConfig resolves the dataset to its naming convention and base URL.
func (c *Config) FetchConfig() (fetch.Config, error) {
	naming, err := fetch.NamingByName(c.Fetch.Dataset)
	if err != nil {
		return fetch.Config{}, err
	}
	base := c.Fetch.ZIPBaseURL
	if strings.EqualFold(c.Fetch.Dataset, "laz") || strings.EqualFold(c.Fetch.Dataset, "dom") {
		base = c.Fetch.LAZBaseURL
	}
	return fetch.Config{
		BaseURL:   base,
		OutputDir: c.Fetch.OutputDir,
		Naming:    naming,
		Timeout:   c.Fetch.Timeout,
		Delay:     c.Fetch.Delay,
	}, nil
}

func (c *Config) RasterConfig() raster.Config {
	return raster.Config{
		Params: raster.Params{
			TileEdge:   c.Convert.TileSize,
			Resolution: c.Convert.Resolution,
		},
		OutputDir: c.Convert.OutputDir,
	}
}

func (c *Config) ServerConfig() server.Config {
	return server.Config{
		Addr:     fmt.Sprintf(":%d", c.Server.Port),
		Root:     c.Server.Directory,
		TilesDir: c.Server.TilesDir,
	}
}

func (c *Config) MonitorConfig() monitor.Config {
	return monitor.Config{
		ArchiveDir:  c.Monitor.ArchiveDir,
		TilesDir:    c.Monitor.TilesDir,
		ProgressLog: c.Monitor.ProgressLog,
		Expected:    c.Monitor.Expected,
		Interval:    c.Monitor.Interval,
	}
}
