package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	Port          string
	Env           string
	PublicBaseURL string
	LogLevel      string

	TwilioAccountSID    string
	TwilioAuthToken     string
	TwilioFromNumber    string
	TwilioAPIBaseURL    string
	TwilioWebhookSecret string
	ValidateSignatures  bool

	RedisAddr     string
	RedisPassword string
	RedisTLS      bool
	SessionTTL    time.Duration
	LockTTL       time.Duration

	BackendTimeout time.Duration
	SlotTimezone   string

	RateLimitPerSecond float64
	RateLimitBurst     int

	AWSRegion           string
	AWSAccessKeyID      string
	AWSSecretAccessKey  string
	AWSEndpointOverride string
	PrescriptionBucket  string

	Endpoints Endpoints
	Templates Templates
}

// Endpoints are absolute URLs of the lab backend. The patient-app API and the
// booking database API live behind different base URLs.
type Endpoints struct {
	UserView          string
	UserRegistration  string
	PatientList       string
	AddPatient        string
	AddUserAddress    string
	GetUserAddress    string
	EditUserAddress   string
	BookingList       string
	BookingPresc      string
	DownloadReports   string
	SaveBooking       string
	CheckNationality  string
	UpdateNationality string
	CheckSurname      string
	SaveUserDetails   string
}

// Templates are the WhatsApp content SIDs sent for quick-reply prompts.
type Templates struct {
	ExistingUserOptions     string
	GenderNewUser           string
	Relationship            string
	SomeoneElseRelationship string
	PatientNationality      string
	SomeoneElseGender       string
	Nationality             string
	Province                string
	AddressConfirmation     string
	ExistingAddress         string
	BookingOptions          string
	DaySlot                 string
	MorningSlot             string
	AfternoonSlot           string
	EveningSlot             string
	BookingDetails          string
	AddFamilyPatient        string
}

// Load reads configuration from environment variables. A .env file in the
// working directory is applied first when present; real env vars win.
func Load() *Config {
	_ = godotenv.Load()

	apiBase := strings.TrimRight(getEnv("LAB_API_BASE_URL", "http://localhost:9000"), "/")
	dbBase := strings.TrimRight(getEnv("LAB_DB_API_BASE_URL", "http://localhost:9100"), "/")

	return &Config{
		Port:          getEnv("PORT", "8080"),
		Env:           getEnv("ENV", "development"),
		PublicBaseURL: getEnv("PUBLIC_BASE_URL", ""),
		LogLevel:      getEnv("LOG_LEVEL", "info"),

		TwilioAccountSID:    getEnv("TWILIO_ACCOUNT_SID", ""),
		TwilioAuthToken:     getEnv("TWILIO_AUTH_TOKEN", ""),
		TwilioFromNumber:    getEnv("TWILIO_WHATSAPP_FROM", ""),
		TwilioAPIBaseURL:    getEnv("TWILIO_API_BASE_URL", "https://api.twilio.com"),
		TwilioWebhookSecret: getEnv("TWILIO_WEBHOOK_SECRET", ""),
		ValidateSignatures:  getEnvAsBool("TWILIO_VALIDATE_SIGNATURES", false),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisTLS:      getEnvAsBool("REDIS_TLS", false),
		SessionTTL:    getEnvAsDuration("SESSION_TTL", 24*time.Hour),
		LockTTL:       getEnvAsDuration("SESSION_LOCK_TTL", 30*time.Second),

		BackendTimeout: getEnvAsDuration("BACKEND_TIMEOUT", 20*time.Second),
		SlotTimezone:   getEnv("SLOT_TIMEZONE", "Asia/Kolkata"),

		RateLimitPerSecond: getEnvAsFloat("RATE_LIMIT_RPS", 2),
		RateLimitBurst:     getEnvAsInt("RATE_LIMIT_BURST", 5),

		AWSRegion:           getEnv("AWS_REGION", "us-east-1"),
		AWSAccessKeyID:      getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey:  getEnv("AWS_SECRET_ACCESS_KEY", ""),
		AWSEndpointOverride: getEnv("AWS_ENDPOINT_OVERRIDE", ""),
		PrescriptionBucket:  getEnv("PRESCRIPTION_ARCHIVE_BUCKET", ""),

		Endpoints: Endpoints{
			UserView:          apiBase + getEnv("LAB_API_USER_VIEW", "/User_View"),
			UserRegistration:  apiBase + getEnv("LAB_API_USER_REGISTRATION", "/User_Registration"),
			PatientList:       apiBase + getEnv("LAB_API_PATIENT_LIST", "/Patient_List"),
			AddPatient:        apiBase + getEnv("LAB_API_ADD_PATIENT", "/Add_Patient"),
			AddUserAddress:    apiBase + getEnv("LAB_API_ADD_ADDRESS", "/User_Address"),
			GetUserAddress:    apiBase + getEnv("LAB_API_GET_ADDRESS", "/Get_User_Address"),
			EditUserAddress:   apiBase + getEnv("LAB_API_EDIT_ADDRESS", "/Edit_User_Address"),
			BookingList:       apiBase + getEnv("LAB_API_BOOKING_LIST", "/Booking_List"),
			BookingPresc:      apiBase + getEnv("LAB_API_BOOKING_PRESC", "/Booking_With_Prescription"),
			DownloadReports:   dbBase + getEnv("LAB_DB_DOWNLOAD_REPORTS", "/download_reports"),
			SaveBooking:       dbBase + getEnv("LAB_DB_SAVE_BOOKING", "/save_booking"),
			CheckNationality:  dbBase + getEnv("LAB_DB_CHECK_NATIONALITY", "/check_nationality"),
			UpdateNationality: dbBase + getEnv("LAB_DB_UPDATE_NATIONALITY", "/update_nationality"),
			CheckSurname:      dbBase + getEnv("LAB_DB_CHECK_SURNAME", "/check_surname"),
			SaveUserDetails:   dbBase + getEnv("LAB_DB_SAVE_USER_DETAILS", "/save_user_details"),
		},

		Templates: Templates{
			ExistingUserOptions:     getEnv("TEMPLATE_EXISTING_USER_OPTIONS", ""),
			GenderNewUser:           getEnv("TEMPLATE_GENDER_NEW_USER", ""),
			Relationship:            getEnv("TEMPLATE_RELATIONSHIP", ""),
			SomeoneElseRelationship: getEnv("TEMPLATE_SOMEONE_ELSE_RELATIONSHIP", ""),
			PatientNationality:      getEnv("TEMPLATE_PATIENT_NATIONALITY_SOMEONE", ""),
			SomeoneElseGender:       getEnv("TEMPLATE_SOMEONE_ELSE_GENDER", ""),
			Nationality:             getEnv("TEMPLATE_NATIONALITY", ""),
			Province:                getEnv("TEMPLATE_PROVINCE", ""),
			AddressConfirmation:     getEnv("TEMPLATE_ADDRESS_CONFIRMATION", ""),
			ExistingAddress:         getEnv("TEMPLATE_EXISTING_ADDRESS", ""),
			BookingOptions:          getEnv("TEMPLATE_BOOKING_OPTIONS", ""),
			DaySlot:                 getEnv("TEMPLATE_DAY_SLOT", ""),
			MorningSlot:             getEnv("TEMPLATE_MORNING_SLOT", ""),
			AfternoonSlot:           getEnv("TEMPLATE_AFTERNOON_SLOT", ""),
			EveningSlot:             getEnv("TEMPLATE_EVENING_SLOT", ""),
			BookingDetails:          getEnv("TEMPLATE_BOOKING_DETAILS", ""),
			AddFamilyPatient:        getEnv("TEMPLATE_ADD_FAMILY_PATIENT", ""),
		},
	}
}

// Location resolves SlotTimezone, falling back to a fixed +05:30 zone when the
// tz database is unavailable.
func (c *Config) Location() *time.Location {
	if loc, err := time.LoadLocation(c.SlotTimezone); err == nil {
		return loc
	}
	return time.FixedZone("IST", 5*60*60+30*60)
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}
