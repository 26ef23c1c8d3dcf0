package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/rs/zerolog"
)

// Storage keys
const (
	keyPreferences = "preferences"
	keyStats       = "stats"
)

// Difficulty represents AI difficulty level
type Difficulty int

const (
	DifficultyEasy Difficulty = iota
	DifficultyMedium
	DifficultyHard
)

func (d Difficulty) String() string {
	switch d {
	case DifficultyEasy:
		return "easy"
	case DifficultyMedium:
		return "medium"
	}
	return "hard"
}

// Next cycles easy, medium, hard and back to easy.
func (d Difficulty) Next() Difficulty {
	if d >= DifficultyHard || d < DifficultyEasy {
		return DifficultyEasy
	}
	return d + 1
}

// PlayerColor represents which color the human plays
type PlayerColor int

const (
	ColorWhite PlayerColor = iota
	ColorBlack
)

func (c PlayerColor) String() string {
	if c == ColorBlack {
		return "black"
	}
	return "white"
}

// UserPreferences stores user settings. Zero search fields mean "use the
// difficulty preset".
type UserPreferences struct {
	Username      string      `json:"username"`
	PlayerColor   PlayerColor `json:"player_color"`
	Difficulty    Difficulty  `json:"difficulty"`
	SearchMode    string      `json:"search_mode,omitempty"`
	ShortlistSize int         `json:"shortlist_size,omitempty"`
	RolloutDepth  int         `json:"rollout_depth,omitempty"`
	ModelPath     string      `json:"model_path,omitempty"`
	LastPlayed    time.Time   `json:"last_played"`
}

// DefaultPreferences returns default user preferences
func DefaultPreferences() *UserPreferences {
	return &UserPreferences{
		Username:    "Player",
		PlayerColor: ColorWhite,
		Difficulty:  DifficultyHard,
		LastPlayed:  time.Now(),
	}
}

// GameStats stores game statistics
type GameStats struct {
	GamesPlayed    int            `json:"games_played"`
	Wins           int            `json:"wins"`
	Losses         int            `json:"losses"`
	Draws          int            `json:"draws"`
	WinsByColor    map[string]int `json:"wins_by_color"`
	WinsByDiff     map[string]int `json:"wins_by_difficulty"`
	TotalPlayTime  time.Duration  `json:"total_play_time"`
	LongestWinStrk int            `json:"longest_win_streak"`
	CurrentStreak  int            `json:"current_streak"`
}

// NewGameStats returns empty game statistics
func NewGameStats() *GameStats {
	return &GameStats{
		WinsByColor: make(map[string]int),
		WinsByDiff:  make(map[string]int),
	}
}

// GameResult represents the result of a completed game
type GameResult struct {
	Won         bool
	Draw        bool
	PlayerColor PlayerColor
	Difficulty  Difficulty
	Duration    time.Duration
}

// Storage wraps BadgerDB for persistent storage
type Storage struct {
	db  *badger.DB
	log zerolog.Logger
}

// NewStorage opens the database under dir, or under the platform data
// directory when dir is empty.
func NewStorage(dir string, log zerolog.Logger) (*Storage, error) {
	if dir == "" {
		var err error
		if dir, err = GetDatabaseDir(); err != nil {
			return nil, err
		}
	}
	log.Debug().Str("dir", dir).Msg("opening database")
	return Open(badger.DefaultOptions(dir), log)
}

// NewMemoryStorage opens a database that lives only in memory.
func NewMemoryStorage(log zerolog.Logger) (*Storage, error) {
	return Open(badger.DefaultOptions("").WithInMemory(true), log)
}

// Open opens a database with explicit badger options. Badger's own
// messages are routed to log at warning level and above.
func Open(opts badger.Options, log zerolog.Logger) (*Storage, error) {
	log = log.With().Str("component", "storage").Logger()
	opts.Logger = badgerLogger{log.Level(maxLevel(log.GetLevel(), zerolog.WarnLevel))}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	return &Storage{db: db, log: log}, nil
}

func maxLevel(a, b zerolog.Level) zerolog.Level {
	if a > b {
		return a
	}
	return b
}

// Close closes the database
func (s *Storage) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// SavePreferences saves user preferences
func (s *Storage) SavePreferences(prefs *UserPreferences) error {
	prefs.LastPlayed = time.Now()
	return s.put(keyPreferences, prefs)
}

// LoadPreferences loads user preferences, returns defaults if not found
func (s *Storage) LoadPreferences() (*UserPreferences, error) {
	prefs := DefaultPreferences()
	return prefs, s.get(keyPreferences, prefs)
}

// SaveStats saves game statistics
func (s *Storage) SaveStats(stats *GameStats) error {
	return s.put(keyStats, stats)
}

// LoadStats loads game statistics, returns empty stats if not found
func (s *Storage) LoadStats() (*GameStats, error) {
	stats := NewGameStats()
	if err := s.get(keyStats, stats); err != nil {
		return stats, err
	}
	if stats.WinsByColor == nil {
		stats.WinsByColor = make(map[string]int)
	}
	if stats.WinsByDiff == nil {
		stats.WinsByDiff = make(map[string]int)
	}
	return stats, nil
}

// RecordGame records a completed game and updates statistics
func (s *Storage) RecordGame(result GameResult) error {
	stats, err := s.LoadStats()
	if err != nil {
		return err
	}

	stats.GamesPlayed++
	stats.TotalPlayTime += result.Duration

	if result.Draw {
		stats.Draws++
		stats.CurrentStreak = 0
	} else if result.Won {
		stats.Wins++
		stats.CurrentStreak++
		if stats.CurrentStreak > stats.LongestWinStrk {
			stats.LongestWinStrk = stats.CurrentStreak
		}
		stats.WinsByColor[result.PlayerColor.String()]++
		stats.WinsByDiff[result.Difficulty.String()]++
	} else {
		stats.Losses++
		stats.CurrentStreak = 0
	}

	s.log.Info().
		Int("played", stats.GamesPlayed).
		Int("wins", stats.Wins).
		Int("losses", stats.Losses).
		Int("draws", stats.Draws).
		Msg("game recorded")

	return s.SaveStats(stats)
}

// GetWinRate returns the win rate as a percentage (0-100)
func (s *GameStats) GetWinRate() float64 {
	if s.GamesPlayed == 0 {
		return 0
	}
	return float64(s.Wins) / float64(s.GamesPlayed) * 100
}

// Summary is a one-line record for the status bar.
func (s *GameStats) Summary() string {
	return fmt.Sprintf("%d-%d-%d (%.0f%% wins)", s.Wins, s.Losses, s.Draws, s.GetWinRate())
}

func (s *Storage) put(key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), data)
	})
}

// get decodes the value under key into v, leaving v untouched when the
// key is missing.
func (s *Storage) get(key string, v any) error {
	return s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, v)
		})
	})
}

// badgerLogger adapts zerolog to badger.Logger.
type badgerLogger struct {
	log zerolog.Logger
}

func (l badgerLogger) Errorf(f string, args ...interface{})   { l.log.Error().Msgf(trim(f), args...) }
func (l badgerLogger) Warningf(f string, args ...interface{}) { l.log.Warn().Msgf(trim(f), args...) }
func (l badgerLogger) Infof(f string, args ...interface{})    { l.log.Info().Msgf(trim(f), args...) }
func (l badgerLogger) Debugf(f string, args ...interface{})   { l.log.Debug().Msgf(trim(f), args...) }

// trim drops the trailing newline badger puts on its format strings.
func trim(f string) string {
	if n := len(f); n > 0 && f[n-1] == '\n' {
		return f[:n-1]
	}
	return f
}
