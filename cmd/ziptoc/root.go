package main

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/meigma/ziptoc"
	"github.com/meigma/ziptoc/internal/config"
)

// app carries state shared by subcommands once the root command has loaded
// the configuration.
type app struct {
	configPath string
	logLevel   string

	cfg    *config.Config
	logger *slog.Logger
	svc    *ziptoc.Service
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:   "ziptoc [command]",
		Short: "Index and extract ZIP archives held in remote storage",
		Long: `ziptoc stores a listing next to each indexed archive. The listing holds
the archive's entry tree and the bytes of its central directory, so later
listings and extractions read only the entry data they need.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.setup,
	}
	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", "ziptoc.yaml", "configuration file")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "override log.level from the configuration")

	root.AddCommand(
		newVersionCmd(),
		newIndexCmd(a),
		newListCmd(a),
		newExtractCmd(a),
		newCatCmd(a),
	)
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version number and exit",
		Args:  cobra.NoArgs,
		// Skip configuration loading.
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
		Run: func(cmd *cobra.Command, _ []string) {
			cmd.Printf("ziptoc version %s\n", version)
		},
	}
}

// setup loads the configuration and builds the service.
func (a *app) setup(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	if a.logLevel != "" {
		cfg.Log.Level = a.logLevel
		if err := cfg.Validate(); err != nil {
			return err
		}
	}
	a.cfg = cfg
	a.logger = cfg.Log.Logger(cmd.ErrOrStderr())

	backend, store, err := openBackends(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	method, err := ziptoc.ParseCompression(cfg.Compression.Method)
	if err != nil {
		return err
	}
	opts := []ziptoc.Option{
		ziptoc.WithLogger(a.logger),
		ziptoc.WithFormats(cfg.Formats...),
		ziptoc.WithMaxEntries(cfg.MaxEntries),
		ziptoc.WithChunkSize(cfg.ChunkSize),
		ziptoc.WithPrefetch(cfg.Prefetch),
		ziptoc.WithCompression(method),
		ziptoc.WithCompressionLevel(cfg.Compression.Level),
		ziptoc.WithMaxDecoderMemory(cfg.Compression.MaxDecoderMemory),
		ziptoc.WithSidecarSuffix(cfg.Sidecar.Suffix),
	}
	if cfg.Cache.TTL > 0 || cfg.Cache.MaxEntries > 0 {
		opts = append(opts, ziptoc.WithDocumentCache(cfg.Cache.TTL, cfg.Cache.MaxEntries))
	}
	a.svc, err = ziptoc.New(backend, store, opts...)
	return err
}
