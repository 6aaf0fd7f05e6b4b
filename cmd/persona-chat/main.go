package main

import (
	"context"
	"io"
	"os"
	"strings"

	"github.com/iguit0/ai-chatbot-personality/cmd/persona-chat/cmds"
	"github.com/iguit0/ai-chatbot-personality/pkg/settings"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/natefinch/lumberjack.v2"
)

var rootCmd = &cobra.Command{
	Use:           "persona-chat",
	Short:         "persona-chat talks to the personality chat backend",
	SilenceUsage:  true,
	SilenceErrors: false,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		// flags are parsed now, so --log-level and co apply
		initLogger()
	},
}

func initLogger() {
	logLevel := viper.GetString("log-level")
	verbose := viper.GetBool("verbose")
	if verbose && logLevel != "trace" {
		logLevel = "debug"
	}

	err := InitLogger(&logConfig{
		Level:      logLevel,
		LogFile:    viper.GetString("log-file"),
		LogFormat:  viper.GetString("log-format"),
		WithCaller: viper.GetBool("with-caller"),
	})
	cobra.CheckErr(err)
}

type logConfig struct {
	WithCaller bool
	Level      string
	LogFormat  string
	LogFile    string
}

func InitLogger(config *logConfig) error {
	logger := zerolog.New(os.Stderr).With().Timestamp()
	if config.WithCaller {
		logger = logger.Caller()
	}

	var logWriter io.Writer
	if config.LogFormat == "text" {
		logWriter = zerolog.ConsoleWriter{Out: os.Stderr}
	} else {
		logWriter = os.Stderr
	}

	if config.LogFile != "" {
		logWriter = io.MultiWriter(
			logWriter,
			zerolog.ConsoleWriter{
				NoColor: true,
				Out: &lumberjack.Logger{
					Filename:   config.LogFile,
					MaxSize:    10, // megabytes
					MaxBackups: 3,
					MaxAge:     28, // days
				},
			})
	}

	log.Logger = logger.Logger().Output(logWriter)

	level, err := zerolog.ParseLevel(config.Level)
	if err != nil || config.Level == "" {
		level = zerolog.WarnLevel
	}
	zerolog.SetGlobalLevel(level)

	return nil
}

func initConfig(rootCmd *cobra.Command, configPath string) error {
	// .env is optional
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Warn().Err(err).Msg("could not load .env")
	}

	viper.SetEnvPrefix("persona_chat")

	if configPath != "" {
		viper.SetConfigFile(configPath)
	} else {
		viper.SetConfigName("config")
		viper.AddConfigPath(".")
		viper.AddConfigPath("$HOME/.persona-chat")
		if dir, err := settings.ConfigDir(); err == nil {
			viper.AddConfigPath(dir)
		}
	}

	err := viper.ReadInConfig()
	if _, ok := err.(viper.ConfigFileNotFoundError); ok {
		// running without a config file is fine
	} else if err != nil {
		return err
	}
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	viper.AutomaticEnv()

	settings.SetDefaults(viper.GetViper())

	if err := viper.BindPFlags(rootCmd.PersistentFlags()); err != nil {
		return err
	}
	if err := viper.BindPFlag("render.markdown", rootCmd.PersistentFlags().Lookup("markdown")); err != nil {
		return err
	}

	initLogger()

	log.Debug().
		Str("config", viper.ConfigFileUsed()).
		Msg("loaded configuration")

	return nil
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func init() {
	flags := rootCmd.PersistentFlags()

	flags.Bool("with-caller", false, "Log caller")
	flags.String("log-level", "warn", "Log level (debug, info, warn, error, fatal)")
	flags.String("log-format", "text", "Log format (json, text)")
	flags.String("log-file", "", "Log file (default: stderr)")
	flags.String("config", "", "Path to config file (default ~/.persona-chat/config.yaml)")
	flags.Bool("verbose", false, "Verbose output")

	flags.String("base-url", settings.DefaultBaseURL, "Base URL of the chat backend")
	flags.Duration("timeout", 0, "Request timeout, 0 for none")
	flags.String("personality-store", settings.StoreRemote, "Where personalities live (remote, memory, bolt, sqlite)")
	flags.String("store-path", "", "File of the bolt or sqlite personality store")
	flags.String("markdown", "auto", "Render replies as markdown (auto, always, never)")

	// parse the flags one time just to catch --config
	configFile := ""
	for idx, arg := range os.Args {
		if arg == "--config" && len(os.Args) > idx+1 {
			configFile = os.Args[idx+1]
		}
		if strings.HasPrefix(arg, "--config=") {
			configFile = strings.TrimPrefix(arg, "--config=")
		}
	}

	if err := initConfig(rootCmd, configFile); err != nil {
		cobra.CheckErr(err)
	}

	rootCmd.AddCommand(
		cmds.NewChatCommand(),
		cmds.NewSendCommand(),
		cmds.NewConversationsCommand(),
		cmds.NewPersonalitiesCommand(),
		cmds.NewPromptsCommand(),
		cmds.NewFakeBackendCommand(),
	)
}
