package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/chimesdkmeetings"
	"github.com/aws/aws-sdk-go-v2/service/chimesdkvoice"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/transcribestreaming"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"parley/conf"
	"parley/consumer"
	"parley/db"
	"parley/kvs"
	"parley/llm"
	"parley/sma"
	"parley/snd"
	"parley/stt"
)

var logger *log.Logger

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.AddCommand(controllerCmd)
	rootCmd.AddCommand(consumerCmd)

	rootCmd.PersistentFlags().String("region", "us-east-1", "AWS region")
	rootCmd.PersistentFlags().
		String("store", "dynamo", "Session store backend (dynamo or badger)")
	rootCmd.PersistentFlags().
		String("data-dir", "", "Badger data directory (empty = in-memory)")
	rootCmd.PersistentFlags().
		String("meeting-table", "", "Session table name")
	rootCmd.PersistentFlags().
		String("call-count-table", "", "Call counter table name")

	controllerCmd.Flags().Int("port", 8080, "Controller HTTP port")
	controllerCmd.Flags().
		String("wav-bucket", "", "Bucket holding the hold-audio clip")
	controllerCmd.Flags().
		String("audio-key", "timer.wav", "Hold-audio object key")

	consumerCmd.Flags().Int("port", 80, "Consumer HTTP port")
	consumerCmd.Flags().
		String("sip-media-application-id", "", "SIP media application ID")
	consumerCmd.Flags().
		String("bedrock-model", "anthropic.claude-instant-v1", "Model ID")

	viper.BindPFlag("region", rootCmd.PersistentFlags().Lookup("region"))
	viper.BindPFlag("store", rootCmd.PersistentFlags().Lookup("store"))
	viper.BindPFlag("data_dir", rootCmd.PersistentFlags().Lookup("data-dir"))
	viper.BindPFlag(
		"meeting_table",
		rootCmd.PersistentFlags().Lookup("meeting-table"),
	)
	viper.BindPFlag(
		"call_count_table",
		rootCmd.PersistentFlags().Lookup("call-count-table"),
	)
	viper.BindPFlag(
		"controller_port",
		controllerCmd.Flags().Lookup("port"),
	)
	viper.BindPFlag("wav_bucket", controllerCmd.Flags().Lookup("wav-bucket"))
	viper.BindPFlag("audio_key", controllerCmd.Flags().Lookup("audio-key"))
	viper.BindPFlag("consumer_port", consumerCmd.Flags().Lookup("port"))
	viper.BindPFlag(
		"sip_media_application_id",
		consumerCmd.Flags().Lookup("sip-media-application-id"),
	)
	viper.BindPFlag(
		"bedrock_model",
		consumerCmd.Flags().Lookup("bedrock-model"),
	)
}

func initConfig() {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AutomaticEnv()

	// Config file is optional; flags and env cover everything.
	_ = viper.ReadInConfig()

	logger = log.New(os.Stdout)
}

var rootCmd = &cobra.Command{
	Use:   "parley",
	Short: "Parley is a phone voice assistant",
	Long: `Parley bridges phone callers into conferencing sessions, streams their
speech through transcription, and speaks back answers from a language model.`,
}

var controllerCmd = &cobra.Command{
	Use:   "controller",
	Short: "Run the call-control state machine",
	Run:   runController,
}

var consumerCmd = &cobra.Command{
	Use:   "consumer",
	Short: "Run the streaming media pipeline service",
	Run:   runConsumer,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func runController(cmd *cobra.Command, args []string) {
	mainLogger, callLogger, _, _, dataLogger := createLoggers()
	ctx := context.Background()

	cfg, err := awsconfig.LoadDefaultConfig(
		ctx,
		awsconfig.WithRegion(viper.GetString("region")),
	)
	if err != nil {
		mainLogger.Fatal("load AWS config", "error", err.Error())
	}

	store, counter, closeStore, err := openStores(cfg, dataLogger)
	if err != nil {
		mainLogger.Fatal("open stores", "error", err.Error())
	}
	defer closeStore()

	meetings := conf.NewChimeMeetings(
		chimesdkmeetings.NewFromConfig(cfg),
		viper.GetString("region"),
	)

	controller := sma.NewController(
		meetings,
		store,
		counter,
		callLogger,
		viper.GetString("wav_bucket"),
		viper.GetString("audio_key"),
	)

	if os.Getenv("AWS_LAMBDA_FUNCTION_NAME") != "" {
		lambda.Start(controller.Handle)
		return
	}

	r := chi.NewRouter()
	r.Post("/event", func(w http.ResponseWriter, req *http.Request) {
		var event sma.Event
		if err := json.NewDecoder(req.Body).Decode(&event); err != nil {
			http.Error(w, "malformed event", http.StatusBadRequest)
			return
		}

		response, err := controller.Handle(req.Context(), event)
		if err != nil {
			callLogger.Error("handle event", "error", err.Error())
			http.Error(w, "event failed", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(response)
	})

	addr := fmt.Sprintf(":%d", viper.GetInt("controller_port"))
	mainLogger.Info("controller listening", "addr", addr)
	if err := http.ListenAndServe(addr, r); err != nil {
		mainLogger.Fatal("serve controller", "error", err.Error())
	}
}

func runConsumer(cmd *cobra.Command, args []string) {
	mainLogger, _, hearLogger, talkLogger, dataLogger := createLoggers()
	ctx := context.Background()

	cfg, err := awsconfig.LoadDefaultConfig(
		ctx,
		awsconfig.WithRegion(viper.GetString("region")),
	)
	if err != nil {
		mainLogger.Fatal("load AWS config", "error", err.Error())
	}

	store, _, closeStore, err := openStores(cfg, dataLogger)
	if err != nil {
		mainLogger.Fatal("open stores", "error", err.Error())
	}
	defer closeStore()

	applicationID := viper.GetString("sip_media_application_id")
	if applicationID == "" {
		mainLogger.Fatal(
			"missing SIP_MEDIA_APPLICATION_ID or --sip-media-application-id=",
		)
	}

	responder := llm.NewResponder(
		llm.NewBedrockLanguageModel(
			bedrockruntime.NewFromConfig(cfg),
			viper.GetString("bedrock_model"),
		),
		talkLogger,
	)

	service := consumer.New(mainLogger, consumer.Options{
		Store:      store,
		Ingester:   kvs.NewMediaIngester(cfg),
		Transcoder: snd.NewFFmpegTranscoder(hearLogger),
		Transcription: stt.NewTranscribeClient(
			transcribestreaming.NewFromConfig(cfg),
			hearLogger,
		),
		Responder: responder,
		Updater: conf.NewChimeCallUpdater(
			chimesdkvoice.NewFromConfig(cfg),
			applicationID,
		),
	})

	addr := fmt.Sprintf(":%d", viper.GetInt("consumer_port"))
	mainLogger.Info("consumer listening", "addr", addr)
	if err := http.ListenAndServe(addr, service.Router()); err != nil {
		mainLogger.Fatal("serve consumer", "error", err.Error())
	}
}

// openStores picks the session store and counter backend: DynamoDB in
// deployment, badger for local work.
func openStores(
	cfg aws.Config,
	dataLogger *log.Logger,
) (db.SessionStore, db.Counter, func(), error) {
	switch viper.GetString("store") {
	case "badger":
		store, err := db.OpenBadger(viper.GetString("data_dir"))
		if err != nil {
			return nil, nil, nil, err
		}
		dataLogger.Info("using badger store", "dir", viper.GetString("data_dir"))
		return store, store, func() { store.Close() }, nil

	default:
		meetingTable := viper.GetString("meeting_table")
		counterTable := viper.GetString("call_count_table")
		if meetingTable == "" || counterTable == "" {
			return nil, nil, nil, fmt.Errorf(
				"meeting-table and call-count-table are required with the dynamo store",
			)
		}

		client := dynamodb.NewFromConfig(cfg)
		dataLogger.Info(
			"using dynamo store",
			"meetings", meetingTable,
			"counter", counterTable,
		)
		return db.NewDynamoSessionStore(client, meetingTable),
			db.NewDynamoCounter(client, counterTable),
			func() {},
			nil
	}
}

func createLoggers() (mainLogger, callLogger, hearLogger, talkLogger, dataLogger *log.Logger) {
	logLevel := log.DebugLevel

	logger.SetLevel(logLevel)
	logger.SetReportCaller(true)
	logger.SetCallerFormatter(
		func(file string, line int, funcName string) string {
			path, err := filepath.Rel(".", file)
			if err != nil {
				path = file
			}
			return fmt.Sprintf("%s:%d", path, line)
		},
	)

	styles := log.DefaultStyles()
	styles.Prefix = styles.Prefix.MarginTop(1).
		Bold(false).Transform(func(s string) string {
		return strings.TrimSuffix(s, ":")
	})
	styles.Levels[log.InfoLevel] = styles.Levels[log.InfoLevel].
		MaxWidth(6).
		MarginRight(1).
		Bold(false)
	styles.Levels[log.ErrorLevel] = styles.Levels[log.ErrorLevel].
		MaxWidth(6).
		MarginRight(1).
		Bold(false)
	styles.Message = styles.Message.Bold(true).Width(24)
	styles.Key = styles.Key.MarginLeft(1).
		Bold(false).
		Foreground(lipgloss.Color("#ff8800"))

	logger.SetStyles(styles)

	mainLogger = logger.With().WithPrefix("main")
	callLogger = logger.With().WithPrefix("call")
	hearLogger = logger.With().WithPrefix("hear")
	talkLogger = logger.With().WithPrefix("talk")
	dataLogger = logger.With().WithPrefix("data")

	return
}
