package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

const defaultConfigPath = "config.yaml"

type Config struct {
	Server struct {
		Host         string   `yaml:"host"`
		Port         string   `yaml:"port"`
		AllowOrigins []string `yaml:"allow_origins"`
	} `yaml:"server"`

	MySQL struct {
		DSN string `yaml:"dsn"`
	} `yaml:"mysql"`

	JWT struct {
		SecretKey string `yaml:"secret_key"`
	} `yaml:"jwt"`

	Model struct {
		APIKey         string `yaml:"api_key"`
		BaseURL        string `yaml:"base_url"`
		ChatModel      string `yaml:"chat_model"`
		EmbeddingModel string `yaml:"embedding_model"`
	} `yaml:"model"`

	Milvus struct {
		Endpoint string `yaml:"endpoint"`
		APIKey   string `yaml:"api_key"`
	} `yaml:"milvus"`

	// Storage 被监控的云存储，provider取值 drive / oss
	Storage struct {
		Provider string `yaml:"provider"`

		Drive struct {
			CredentialsFile   string `yaml:"credentials_file"`
			FolderID          string `yaml:"folder_id"`
			IncludeSubfolders bool   `yaml:"include_subfolders"`
		} `yaml:"drive"`

		OSS struct {
			Region          string `yaml:"region"`
			AccessKeyID     string `yaml:"access_key_id"`
			AccessKeySecret string `yaml:"access_key_secret"`
			BucketName      string `yaml:"bucket_name"`
			Prefix          string `yaml:"prefix"`
		} `yaml:"oss"`
	} `yaml:"storage"`

	Calendar struct {
		CredentialsFile string `yaml:"credentials_file"`
		CalendarID      string `yaml:"calendar_id"`
		TimeZone        string `yaml:"time_zone"`
	} `yaml:"calendar"`

	MQ struct {
		NameServer []string `yaml:"name_server"`
	} `yaml:"mq"`

	MCP struct {
		Host string `yaml:"host"`
		Port string `yaml:"port"`
	} `yaml:"mcp"`

	Scan struct {
		IntervalMinutes       int `yaml:"interval_minutes"`
		WorkerNum             int `yaml:"worker_num"`
		MaxAttempts           int `yaml:"max_attempts"`
		RetryAttempts         int `yaml:"retry_attempts"`
		RequestTimeoutSeconds int `yaml:"request_timeout_seconds"`
		DefaultDueOffsetHours int `yaml:"default_due_offset_hours"`
	} `yaml:"scan"`
}

var Cfg = &Config{}

func init() {
	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = defaultConfigPath
	}

	// 配置文件不存在时保留零值，便于工具命令和测试运行
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return
	}

	if err := Load(path); err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}
}

func Load(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %v", err)
	}

	if err := yaml.Unmarshal(data, Cfg); err != nil {
		return fmt.Errorf("failed to parse config file: %v", err)
	}

	return nil
}
