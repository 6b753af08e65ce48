package config

import (
	"io/fs"
	"time"
)

// -----------------------------------------------------------------------------
// Build Information
// -----------------------------------------------------------------------------

// Build variables are injected via -ldflags.
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// UserAgent identifies the HTTP client.
var UserAgent = "Go-Haid/" + Version

// -----------------------------------------------------------------------------
// Application Constants
// -----------------------------------------------------------------------------

const (
	AppName        = "Go Haid"
	AppID          = "com.github.tartampluch.go-haid"
	KeyringService = "com.github.tartampluch.go-haid"
	LogFileName    = "app.log"
)

// -----------------------------------------------------------------------------
// Exit Codes
// -----------------------------------------------------------------------------

const (
	ExitCodeSuccess = 0
	ExitCodeError   = 1
)

// -----------------------------------------------------------------------------
// System & File Permissions
// -----------------------------------------------------------------------------

const (
	// FilePermUserRW represents -rw------- (Read/Write for owner only).
	FilePermUserRW fs.FileMode = 0600

	// DirPermUserRWX represents drwx------ (Read/Write/Exec for owner only).
	DirPermUserRWX fs.FileMode = 0700

	// ChannelBufferSize defines the standard buffer size for internal signaling channels.
	ChannelBufferSize = 1

	// EventBufferSize is the per-subscriber depth for store change notifications.
	EventBufferSize = 64
)

// -----------------------------------------------------------------------------
// CLI Flags & Descriptions
// -----------------------------------------------------------------------------

const (
	FlagVersion       = "version"
	FlagDebug         = "debug"
	FlagConfig        = "config"
	FlagSetRedisPass  = "set-redis-password"
	FlagDescVersion   = "Show application version and exit"
	FlagDescDebug     = "Enable debug logging to stdout"
	FlagDescConfig    = "Path to the YAML settings file"
	FlagDescSetRedis  = "Read the Redis password from stdin, store it in the OS keyring and exit"
	MsgVersionOutput  = "%s version %s (commit %s, built %s, %s/%s)\n"
	MsgSecretStored   = "Redis password stored in keyring for %s\n"
	DefaultConfigPath = ""
)

// -----------------------------------------------------------------------------
// Classification Rules
// -----------------------------------------------------------------------------

const (
	// HaidMaxDays is the longest bleeding duration recognized as fully valid.
	HaidMaxDays = 15.0

	HoursPerDay = 24.0

	// UnitDays and UnitHours are the unit tokens of the canonical duration text.
	UnitDays  = "D"
	UnitHours = "H"

	// DurationSeparator joins the days and hours segments ("3 D, 5 H").
	DurationSeparator = ", "

	// AbsentValue is displayed for any quantity that could not be derived.
	AbsentValue = "-"

	// DisplayDateTime mirrors the table layout "DD/MM/YYYY HH:mm".
	DisplayDateTime = "02/01/2006 15:04"

	DefaultConsultPhone    = "6285745175624"
	DefaultConsultEndpoint = "https://wa.me/" + DefaultConsultPhone
	ConsultTextParam       = "text"
	ConsultEndpointPrefix  = "https://wa.me/"
)

// -----------------------------------------------------------------------------
// Default Values
// -----------------------------------------------------------------------------

const (
	StoreModeMemory = "memory"
	StoreModeRedis  = "redis"

	DefaultListenAddr = "127.0.0.1:18081"
	DefaultStoreMode  = StoreModeMemory
	DefaultRedisAddr  = "localhost:6379"
	DefaultRedisDB    = 0
	DefaultLanguage   = "id"
)

// SupportedLanguages defines the list of available label languages (ISO 639-1).
var SupportedLanguages = []string{"id", "en"}

// -----------------------------------------------------------------------------
// Environment Overrides
// -----------------------------------------------------------------------------

const (
	EnvListenAddr      = "HAID_LISTEN_ADDR"
	EnvStoreMode       = "HAID_STORE"
	EnvRedisAddr       = "HAID_REDIS_ADDR"
	EnvRedisPassword   = "HAID_REDIS_PASSWORD"
	EnvRedisDB         = "HAID_REDIS_DB"
	EnvLanguage        = "HAID_LANGUAGE"
	EnvConsultEndpoint = "HAID_CONSULT_ENDPOINT"
	EnvConsultantVCard = "HAID_CONSULTANT_VCARD"
)

// -----------------------------------------------------------------------------
// Storage Keys
// -----------------------------------------------------------------------------

const (
	RedisRecordKeyPrefix = "haid:records:"
	RedisChangeChannel   = "haid:changes"
	OpPut                = "put"
	OpDelete             = "delete"
)

// -----------------------------------------------------------------------------
// Standards: iCalendar & vCard
// -----------------------------------------------------------------------------

const (
	ICalVersion = "2.0"
	ICalProdid  = "-//Go Haid//Tracker//EN"
	ICalCalName = "Haid"
	ICalMethod  = "PUBLISH"
	ICalScale   = "GREGORIAN"
	ICalDomain  = "gohaid"

	PropUID         = "UID"
	PropSummary     = "SUMMARY"
	PropDTStart     = "DTSTART"
	PropDTEnd       = "DTEND"
	PropDTStamp     = "DTSTAMP"
	PropRefresh     = "REFRESH-INTERVAL"
	PropDescription = "DESCRIPTION"
	PropURL         = "URL"
	PropVersion     = "VERSION"
	PropProdid      = "PRODID"
	PropXWRCalName  = "X-WR-CALNAME"
	PropCalScale    = "CALSCALE"
	PropMethod      = "METHOD"

	VCardTEL = "TEL"
	VCardFN  = "FN"

	DefaultICalRefresh = 1 * time.Hour

	UIDHashLength   = 16
	FormatHashInput = "%s|%s"
	FormatUID       = "%s@%s"

	// ICalSummarySep joins the labels of a record into one SUMMARY.
	ICalSummarySep = " / "
	// FormatICalDescription expects the bleeding and purity display strings.
	FormatICalDescription = "Bleeding: %s\nPurity: %s"
	FormatICalConsult     = "\nConsult: %s"

	// StubVCalendar is the minimal valid iCalendar object used when no events are found.
	StubVCalendar = "BEGIN:VCALENDAR\r\nVERSION:2.0\r\nPRODID:" + ICalProdid + "\r\nEND:VCALENDAR\r\n"
)

// -----------------------------------------------------------------------------
// Network & Timeouts
// -----------------------------------------------------------------------------

const (
	HTTPTimeout         = 30 * time.Second
	ShutdownTimeout     = 5 * time.Second
	HealthTimeout       = 5 * time.Second
	ServerReadTimeout   = 10 * time.Second
	ServerWriteTimeout  = 30 * time.Second
	ServerIdleTimeout   = 60 * time.Second
	RetryAfterSeconds   = "10"
	MaxHTTPResponseSize = 1024 * 1024 // 1MB, a consultant card is tiny
	SchemeHTTP          = "http"
	SchemeHTTPS         = "https"

	WSWriteTimeout = 10 * time.Second
	WSPongWait     = 60 * time.Second
	WSPingPeriod   = (WSPongWait * 9) / 10
	WSSendBufSize  = 16
)

// -----------------------------------------------------------------------------
// HTTP Routes, Headers & MIME Types
// -----------------------------------------------------------------------------

const (
	RouteHealth   = "/health"
	RouteLive     = "/health/live"
	RouteAPI      = "/api/v1/users/:user"
	RouteRecords  = "/records"
	RouteRecord   = "/records/:id"
	RouteCalendar = "/calendar.ics"
	RouteWS       = "/ws"

	ParamUser = "user"
	ParamID   = "id"
	QueryLang = "lang"

	HeaderContentType     = "Content-Type"
	HeaderCacheControl    = "Cache-Control"
	HeaderETag            = "ETag"
	HeaderLastModified    = "Last-Modified"
	HeaderRetryAfter      = "Retry-After"
	HeaderXContentType    = "X-Content-Type-Options"
	HeaderUserAgent       = "User-Agent"
	HeaderIfNoneMatch     = "If-None-Match"
	HeaderIfModifiedSince = "If-Modified-Since"
	HeaderAcceptLanguage  = "Accept-Language"

	MimeTextCalendar    = "text/calendar; charset=utf-8"
	MimeNoSniff         = "nosniff"
	CacheControlPrivate = "private, no-cache"

	// FormatETag expects a string argument.
	FormatETag = `"%s"`

	WSEventTable = "table"
)

// -----------------------------------------------------------------------------
// Translation Keys (i18n)
// -----------------------------------------------------------------------------

const (
	TKeyHaid          = "label_haid"
	TKeyIstihadoh     = "label_istihadoh"
	TKeyBrokenPattern = "label_broken_pattern"
	TKeyConsultMsg    = "consult_message"

	LocalesDir    = "locales"
	LocalePrefix  = "active."
	LocaleSuffix  = ".json"
	LocaleJSONExt = "json"
)

// -----------------------------------------------------------------------------
// Error Messages (Technical/Logs)
// -----------------------------------------------------------------------------

const (
	ErrServerStartup   = "server startup failed"
	ErrServerShutdown  = "server shutdown failed"
	ErrListenRequired  = "listen address is required"
	ErrInvalidURL      = "invalid URL structure"
	ErrProtocol        = "unsupported protocol scheme (http/https only)"
	ErrVCardParse      = "failed to parse consultant vCard"
	ErrVCardNoPhone    = "consultant vCard has no usable TEL property"
	ErrFetcherMissing  = "no fetcher configured for remote consultant card"
	ErrICalEncode      = "failed to encode iCalendar data"
	ErrLogFile         = "failed to open log file"
	ErrCacheDir        = "could not determine user cache dir"
	ErrCreateDir       = "could not create app cache dir"
	ErrAppFailed       = "application failed unexpectedly"
	ErrWriteResp       = "failed to write response body"
	ErrLocalesAccess   = "failed to access embedded locales"
	ErrLocaleLoad      = "failed to load locale file"
	ErrSettingsRead    = "failed to read settings file"
	ErrSettingsParse   = "failed to parse settings file"
	ErrStoreList       = "failed to list records"
	ErrStoreWrite      = "failed to write record"
	ErrStoreDecode     = "failed to decode stored record"
	ErrStoreSubscribe  = "failed to subscribe to record changes"
	ErrEventsClosed    = "record change subscription closed"
	ErrRedisConnect    = "failed to connect redis"
	ErrRedisInstrument = "failed to instrument redis client"
	ErrSecretInput     = "failed to read password from stdin"
	ErrKeyringRead     = "failed to read secret from keyring"
	ErrKeyringWrite    = "failed to write secret to keyring"
	ErrMetricsInit     = "failed to initialize metrics"
	ErrConsultantLoad  = "failed to load consultant contact"
	ErrInvalidTime     = "invalid timestamp, expected RFC3339"
	ErrInvalidPayload  = "invalid record payload"
	ErrCalendarRender  = "failed to render calendar"
	ErrTableCompute    = "failed to compute table"
	ErrWSUpgrade       = "websocket upgrade failed"
	ErrWatcher         = "settings watcher error"
	ErrSettingsReload  = "settings reload failed, keeping previous settings"
	HTTPMsgInternalErr = "Internal Server Error"
	HTTPMsgNotFound    = "record not found"
	HTTPMsgCalendarNA  = "Calendar initializing, please try again shortly."
)

// -----------------------------------------------------------------------------
// Log Messages
// -----------------------------------------------------------------------------

const (
	MsgAppStop          = "Application stopped gracefully"
	MsgAppStarting      = "Starting application"
	MsgServerListen     = "HTTP server listening"
	MsgServerStop       = "Shutting down HTTP server..."
	MsgCacheUpdated     = "Calendar cache updated"
	MsgLocaleSkip       = "Skipping non-locale file"
	MsgLocaleBadName    = "Skipping malformed locale filename"
	MsgLocaleLoaded     = "Locale loaded successfully"
	MsgTransMissing     = "Missing translation key"
	MsgLogWarning       = "Warning: %s at %s: %v\n"
	MsgClassified       = "Records classified"
	MsgChainedOverflow  = "Third consecutive over-threshold record, manual review required"
	MsgEscalation       = "Broken pattern detected"
	MsgSkippedTimestamp = "Ignoring unparseable timestamp"
	MsgTrackerStart     = "Tracker started"
	MsgTrackerStop      = "Tracker stopping due to context cancellation"
	MsgRecordChanged    = "Record change received"
	MsgSettingsWatch    = "Watching settings for changes"
	MsgSettingsReloaded = "Settings reloaded"
	MsgRedisConnected   = "Redis connected"
	MsgConsultantLoaded = "Consultant contact loaded"
	MsgWSClientJoined   = "Websocket client connected"
	MsgWSClientDropped  = "Websocket client dropped, send buffer full"
	MsgPassFail         = "Keyring lookup failed, continuing without password"
	MsgCalendarRendered = "Calendar rendered"
	MsgEventDropped     = "Change event dropped, subscriber too slow"
	MsgRequestServed    = "Request served"
	MsgEventMalformed   = "Ignoring malformed change event"
	MsgSkippedRecord    = "Skipping record without a bleeding interval"
	MsgStoreReady       = "Record store ready"
	MsgCtxCancel        = "Context cancelled, stopping components"
)

// -----------------------------------------------------------------------------
// Structured Logging Keys (slog)
// -----------------------------------------------------------------------------

const (
	LogKeyComponent = "component"
	LogKeyError     = "error"
	LogKeyURL       = "url"
	LogKeyStatus    = "status_code"
	LogKeyFile      = "file"
	LogKeyLang      = "lang"
	LogKeyKey       = "key"
	LogKeyAddr      = "addr"
	LogKeyUser      = "user"
	LogKeyRecord    = "record_id"
	LogKeyOp        = "op"
	LogKeyIndex     = "index"
	LogKeyCount     = "count"
	LogKeyFlagged   = "flagged"
	LogKeyEscalated = "escalated"
	LogKeySizeBytes = "size_bytes"
	LogKeyETag      = "etag"
	LogKeyValue     = "value"
	LogKeyDuration  = "duration_ms"
	LogKeyMode      = "mode"
	LogKeyPath      = "path"
	LogKeyClients   = "clients"

	// Startup Info Keys
	LogKeyBuild   = "build"
	LogKeyApp     = "app"
	LogKeyVersion = "version"
	LogKeyCommit  = "commit"
	LogKeyDate    = "build_date"
	LogKeyGoVer   = "go_version"
	LogKeyEnv     = "env"
	LogKeyOS      = "os"
	LogKeyArch    = "arch"
	LogKeyPID     = "pid"
)

// -----------------------------------------------------------------------------
// Log Components
// -----------------------------------------------------------------------------

const (
	CompServer   = "server"
	CompFetcher  = "fetcher"
	CompContact  = "contact"
	CompCalendar = "calendar"
	CompStore    = "store"
	CompTracker  = "tracker"
	CompWS       = "ws"
	CompSettings = "settings"
	CompMain     = "main"
	CompI18n     = "i18n"
)
