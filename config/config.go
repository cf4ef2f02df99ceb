package config

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// LoadEnv loads a .env file into the process environment. A missing file is
// not an error; variables already set win over the file.
func LoadEnv(path string) error {
	if path == "" {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return err
	}
	return nil
}

// Config is read from the environment once at startup and handed to each
// component.
type Config struct {
	DatabaseURL string
	RedisAddr   string
	RedisPwd    string
	Port        string
	WebOrigin   string

	IMAPHost         string
	IMAPPort         int
	SMTPHost         string
	SMTPPort         int
	EmailAddress     string
	EmailAppPassword string
	CCMe             string
	ReplySubject     string

	PollInterval   time.Duration
	AllowedSenders []string
	SubjectActions []string

	UseLLM        bool
	OpenAIModel   string
	OpenAIAPIKey  string
	OpenAIBaseURL string
	LLMTimeout    time.Duration

	SeedFile    string
	SeedOnStart bool
	LedgerTTL   time.Duration

	// AdminToken guards the catalog write endpoints; empty leaves them open.
	AdminToken string

	LogLevel  string
	LogFormat string
}

const DefaultSubjectActions = "reservar,renovar,cancelar,registrar,eliminar,lista,listar"

func Load() Config {
	get := func(k, def string) string {
		if v := strings.TrimSpace(os.Getenv(k)); v != "" {
			return v
		}
		return def
	}
	getInt := func(k string, def int) int {
		if n, err := strconv.Atoi(get(k, "")); err == nil {
			return n
		}
		return def
	}

	pollSec := getInt("POLL_SECONDS", 15)
	if pollSec <= 0 {
		pollSec = 15
	}

	return Config{
		DatabaseURL: databaseURL(get),
		RedisAddr:   os.Getenv("REDIS_ADDR"),
		RedisPwd:    os.Getenv("REDIS_PASSWORD"),
		Port:        get("PORT", "3001"),
		WebOrigin:   get("WEB_ORIGIN", "http://localhost:3000"),

		IMAPHost:         get("IMAP_HOST", "imap.gmail.com"),
		IMAPPort:         getInt("IMAP_PORT", 993),
		SMTPHost:         get("SMTP_HOST", "smtp.gmail.com"),
		SMTPPort:         getInt("SMTP_PORT", 587),
		EmailAddress:     get("EMAIL_ADDRESS", ""),
		EmailAppPassword: os.Getenv("EMAIL_APP_PASSWORD"),
		CCMe:             get("CC_ME", ""),
		ReplySubject:     get("REPLY_SUBJECT", "Biblioteca — Respuesta"),

		PollInterval: time.Duration(pollSec) * time.Second,
		// 例如: "alice@ex.com,bob@ex.com"
		AllowedSenders: SplitCSV(os.Getenv("ALLOWED_SENDERS")),
		SubjectActions: SplitCSV(get("SUBJECT_ACTIONS", DefaultSubjectActions)),

		UseLLM:        strings.EqualFold(get("USE_LLM", "false"), "true"),
		OpenAIModel:   get("OPENAI_MODEL", "gpt-4o-mini"),
		OpenAIAPIKey:  os.Getenv("OPENAI_API_KEY"),
		OpenAIBaseURL: get("OPENAI_BASE_URL", "https://api.openai.com/v1"),
		LLMTimeout:    time.Duration(getInt("LLM_TIMEOUT_SECONDS", 20)) * time.Second,

		SeedFile:    get("SEED_FILE", ""),
		SeedOnStart: strings.EqualFold(get("SEED_ON_START", "false"), "true"),
		LedgerTTL:   time.Duration(getInt("LEDGER_TTL_HOURS", 72)) * time.Hour,
		AdminToken:  os.Getenv("ADMIN_TOKEN"),

		LogLevel:  get("LOG_LEVEL", "info"),
		LogFormat: get("LOG_FORMAT", "text"),
	}
}

// databaseURL prefers DATABASE_URL, then the DB_* postgres variables, then a
// local sqlite file.
func databaseURL(get func(k, def string) string) string {
	if u := get("DATABASE_URL", ""); u != "" {
		return u
	}
	if host := get("DB_HOST", ""); host != "" {
		return "host=" + host +
			" user=" + get("DB_USER", "postgres") +
			" password=" + get("DB_PASSWORD", "") +
			" dbname=" + get("DB_NAME", "library") +
			" port=" + get("DB_PORT", "5432") +
			" sslmode=disable"
	}
	return "sqlite://data/library.db"
}

// SplitCSV splits a comma separated list, trimming and lowercasing entries
// and dropping empty ones.
func SplitCSV(csv string) []string {
	var out []string
	for _, s := range strings.Split(csv, ",") {
		if t := strings.TrimSpace(s); t != "" {
			out = append(out, strings.ToLower(t))
		}
	}
	return out
}

// MailConfigured reports whether credentials for the inbox and the outbound
// server are present.
func (c Config) MailConfigured() bool {
	return c.EmailAddress != "" && c.EmailAppPassword != ""
}
