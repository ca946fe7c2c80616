// Command translate-client submits one translation job over NATS and prints the reply.
package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/book-expert/logger"
	"github.com/book-expert/translation-service/internal/core"
	"github.com/book-expert/translation-service/internal/worker"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
)

// Flag descriptions.
const (
	flagNATSDesc      = "NATS server URL"
	flagPrefixDesc    = "Job subject prefix"
	flagDirectionDesc = "Pipeline direction: forward (stm) or backward (mts)"
	flagJobDesc       = "Job id (defaults to a random UUID)"
	flagAudioDesc     = "Reference of the audio to translate"
	flagFromDesc      = "Source language code"
	flagToDesc        = "Target language code"
	flagTimeoutDesc   = "How long to wait for the reply"
	flagVerboseDesc   = "Write a log file in the OS temp directory"
)

// Flag names.
const (
	flagNATS      = "nats"
	flagPrefix    = "prefix"
	flagDirection = "direction"
	flagJob       = "job"
	flagAudio     = "audio"
	flagFrom      = "from"
	flagTo        = "to"
	flagTimeout   = "timeout"
	flagVerbose   = "verbose"
)

const logFileName = "translate-client.log"

var (
	errAudioRequired = errors.New("--audio must be provided")
	errLanguages     = errors.New("--from and --to must both be provided")
	errJobFailed     = errors.New("job failed")
)

// appFlags holds the parsed command-line flag values.
type appFlags struct {
	natsURL   string
	prefix    string
	direction string
	jobID     string
	audio     string
	from      string
	to        string
	timeout   time.Duration
	verbose   bool
}

func main() {
	err := run()
	if err != nil {
		log.Fatalf("Error: %v", err)
	}
}

func run() error {
	flags := parseFlags(flag.CommandLine, os.Args[1:])

	direction, job, err := buildRequest(flags)
	if err != nil {
		flag.Usage()

		return err
	}

	var clientLog *logger.Logger

	if flags.verbose {
		clientLog, err = logger.New(os.TempDir(), logFileName)
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}

		defer func() {
			closeErr := clientLog.Close()
			if closeErr != nil {
				fmt.Fprintf(os.Stderr, "error closing logger: %v\n", closeErr)
			}
		}()
	}

	natsConnection, err := nats.Connect(flags.natsURL, nats.Name("translate-client"))
	if err != nil {
		return fmt.Errorf("failed to connect to nats: %w", err)
	}
	defer natsConnection.Close()

	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}

	subject := worker.Subject(flags.prefix, direction)
	if clientLog != nil {
		clientLog.Info("Submitting job %s on '%s'", job.JobID, subject)
	}

	reply, err := natsConnection.Request(subject, payload, flags.timeout)
	if err != nil {
		return fmt.Errorf("request on '%s' failed: %w", subject, err)
	}

	output, err := formatReply(reply.Data)
	if clientLog != nil {
		clientLog.Info("Reply for job %s: %s", job.JobID, output)
	}

	fmt.Println(output)

	return err
}

// parseFlags defines and parses command-line flags on set.
func parseFlags(set *flag.FlagSet, args []string) appFlags {
	var flags appFlags
	set.StringVar(&flags.natsURL, flagNATS, nats.DefaultURL, flagNATSDesc)
	set.StringVar(&flags.prefix, flagPrefix, "translation.pipeline", flagPrefixDesc)
	set.StringVar(&flags.direction, flagDirection, string(core.DirectionForward), flagDirectionDesc)
	set.StringVar(&flags.jobID, flagJob, "", flagJobDesc)
	set.StringVar(&flags.audio, flagAudio, "", flagAudioDesc)
	set.StringVar(&flags.from, flagFrom, "", flagFromDesc)
	set.StringVar(&flags.to, flagTo, "", flagToDesc)
	set.DurationVar(&flags.timeout, flagTimeout, 10*time.Minute, flagTimeoutDesc)
	set.BoolVar(&flags.verbose, flagVerbose, false, flagVerboseDesc)
	_ = set.Parse(args)

	return flags
}

// buildRequest validates flags and turns them into a direction and job.
func buildRequest(flags appFlags) (core.Direction, core.JobDescriptor, error) {
	direction, err := core.ParseDirection(flags.direction)
	if err != nil {
		return "", core.JobDescriptor{}, err
	}

	if flags.audio == "" {
		return "", core.JobDescriptor{}, errAudioRequired
	}

	if flags.from == "" || flags.to == "" {
		return "", core.JobDescriptor{}, errLanguages
	}

	jobID := flags.jobID
	if jobID == "" {
		jobID = uuid.NewString()
	}

	return direction, core.JobDescriptor{
		JobID:          jobID,
		AudioReference: flags.audio,
		SourceLanguage: flags.from,
		TargetLanguage: flags.to,
	}, nil
}

// formatReply renders a worker reply. An error reply is returned as errJobFailed.
func formatReply(data []byte) (string, error) {
	var failure worker.ErrorReply

	err := json.Unmarshal(data, &failure)
	if err == nil && failure.Code != 0 {
		return fmt.Sprintf("failed (%d %s): %s", failure.Code, failure.Kind, failure.Detail),
			fmt.Errorf("%w: %s", errJobFailed, failure.Detail)
	}

	var result core.Result

	err = json.Unmarshal(data, &result)
	if err != nil {
		return "", fmt.Errorf("failed to decode reply: %w", err)
	}

	return fmt.Sprintf("job %s completed\ntext:  %s\naudio: %s",
		result.JobID, result.TranslatedText, result.OutputAudioReference), nil
}
