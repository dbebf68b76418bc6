// Package environment reads the judge daemon's configuration from the
// process environment, with an optional .env file for development.
package environment

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Queue backends.
const (
	QueueBackendSQS  = "sqs"
	QueueBackendNATS = "nats"
)

type EnvConfig struct {
	SqlxConnString string

	QueueBackend string
	SQSQueueURL  string
	NATSUrl      string
	NATSSubject  string

	WorkerCount int
	ScratchRoot string

	NsjailBinary string
	ChrootPath   string
	CgroupPath   string

	LogLevel string
}

// ReadEnvConfig loads configuration from the environment. A missing .env
// file is fine in production where variables come from the unit file.
func ReadEnvConfig() (*EnvConfig, error) {
	_ = godotenv.Load()

	result := &EnvConfig{}

	dbHost := getenvDefault("DB_HOST", "localhost")
	dbPort := getenvDefault("DB_PORT", "5432")
	dbUser := os.Getenv("DB_USER")
	dbPass := os.Getenv("DB_PASS")
	dbName := os.Getenv("DB_NAME")
	dbSslMode := getenvDefault("DB_SSLMODE", "disable")

	result.SqlxConnString = fmt.Sprintf(
		`host=%s port=%s user=%s password=%s dbname=%s sslmode=%s`,
		dbHost, dbPort, dbUser, dbPass, dbName, dbSslMode)

	result.QueueBackend = getenvDefault("QUEUE_BACKEND", QueueBackendSQS)
	result.SQSQueueURL = os.Getenv("SQS_QUEUE_URL")
	result.NATSUrl = getenvDefault("NATS_URL", "nats://localhost:4222")
	result.NATSSubject = getenvDefault("NATS_SUBJECT", "submissions.judge")

	workerCount, err := strconv.Atoi(getenvDefault("WORKER_COUNT", "4"))
	if err != nil || workerCount < 1 {
		return nil, fmt.Errorf("WORKER_COUNT must be a positive integer, got %q", os.Getenv("WORKER_COUNT"))
	}
	result.WorkerCount = workerCount

	result.ScratchRoot = getenvDefault("SCRATCH_ROOT", os.TempDir())
	result.NsjailBinary = getenvDefault("NSJAIL_BINARY", "/usr/local/bin/nsjail")
	result.ChrootPath = getenvDefault("CHROOT_PATH", "/chroot")
	result.CgroupPath = os.Getenv("CGROUP_PATH")
	result.LogLevel = getenvDefault("LOG_LEVEL", "info")

	return result, nil
}

// ValidateQueue checks the queue part of the configuration. Only commands
// that actually touch the queue call it; local judging works without one.
func (c *EnvConfig) ValidateQueue() error {
	switch c.QueueBackend {
	case QueueBackendSQS:
		if c.SQSQueueURL == "" {
			return fmt.Errorf("SQS_QUEUE_URL is required when QUEUE_BACKEND=sqs")
		}
	case QueueBackendNATS:
		// Defaults cover the NATS case.
	default:
		return fmt.Errorf("unknown QUEUE_BACKEND %q (want %q or %q)",
			c.QueueBackend, QueueBackendSQS, QueueBackendNATS)
	}
	return nil
}

func getenvDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
