// Package flow routes inbound chat updates through the per-chat session
// state machine and hands completed sessions to the build orchestrator.
package flow

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/webapk-bot/webapk/internal/buildlock"
	"github.com/webapk-bot/webapk/internal/chat"
	"github.com/webapk-bot/webapk/internal/session"
)

// Config holds the flow parameters.
type Config struct {
	// AssetDir stores downloaded icons and archives until a build consumes
	// them.
	AssetDir string `env:"ASSET_DIR" envDefault:"/var/tmp/webapk/assets"`
	// AdminChatID may use /unlock to force-release a stuck gate. Zero
	// disables the command.
	AdminChatID int64 `env:"ADMIN_CHAT_ID"`
}

// BuildRunner starts one build attempt for a chat whose session reached the
// building step.
type BuildRunner interface {
	Run(ctx context.Context, requester chat.User, chatID int64)
}

type Handler struct {
	config   *Config
	sessions *session.Store
	lock     *buildlock.Lock
	builds   BuildRunner
	gateway  chat.Gateway
	logger   *slog.Logger
}

func NewHandler(
	config *Config,
	sessions *session.Store,
	lock *buildlock.Lock,
	builds BuildRunner,
	gateway chat.Gateway,
	logger *slog.Logger,
) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		config:   config,
		sessions: sessions,
		lock:     lock,
		builds:   builds,
		gateway:  gateway,
		logger:   logger.With("component", "flow"),
	}
}

const helpText = `I build Android apps.

/build - build an app from a website URL
/apk - build an app from an uploaded project archive
/cancel - abandon the current flow
/status - show whether a build is running`

var projectTypes = []string{"android", "cordova", "flutter", "react-native"}

// HandleUpdate processes one inbound update. It is quick: the only slow
// work, the build itself, runs on its own goroutine.
func (h *Handler) HandleUpdate(ctx context.Context, u chat.Update) {
	if cmd, ok := command(u.Text); ok {
		h.handleCommand(ctx, u, cmd)
		return
	}

	s := h.sessions.Get(u.ChatID)
	if s == nil {
		h.send(ctx, u.ChatID, "Send /build to start building an app, or /start for help.")
		return
	}

	switch s.Step {
	case session.StepURL:
		h.handleURL(ctx, u, s)
	case session.StepName:
		h.handleName(ctx, u, s)
	case session.StepIcon:
		h.handleIcon(ctx, u, s)
	case session.StepConfirm:
		h.handleConfirm(ctx, u, s)
	case session.StepProjectType:
		h.handleProjectType(ctx, u, s)
	case session.StepBuildType:
		h.handleBuildType(ctx, u, s)
	case session.StepUpload:
		h.handleUpload(ctx, u, s)
	case session.StepBuilding:
		h.send(ctx, u.ChatID, "Your build is running, hold on.")
	}
}

func command(text string) (string, bool) {
	if !strings.HasPrefix(text, "/") {
		return "", false
	}
	cmd := strings.Fields(text)[0]
	// Group chats address commands as /cmd@botname.
	if i := strings.IndexByte(cmd, '@'); i > 0 {
		cmd = cmd[:i]
	}
	return cmd, true
}

func (h *Handler) handleCommand(ctx context.Context, u chat.Update, cmd string) {
	switch cmd {
	case "/start", "/help":
		h.send(ctx, u.ChatID, helpText)

	case "/build":
		h.startFlow(ctx, u.ChatID, session.StepURL,
			"Send me the website URL to turn into an app.")

	case "/apk":
		h.startFlow(ctx, u.ChatID, session.StepProjectType,
			"What kind of project is it? One of: "+strings.Join(projectTypes, ", "))

	case "/cancel":
		h.handleCancel(ctx, u.ChatID)

	case "/status":
		h.handleStatus(ctx, u.ChatID)

	case "/unlock":
		h.handleUnlock(ctx, u.ChatID)

	default:
		h.send(ctx, u.ChatID, "Unknown command. Send /start for help.")
	}
}

func (h *Handler) startFlow(ctx context.Context, chatID int64, step session.Step, prompt string) {
	if s := h.sessions.Get(chatID); s != nil && s.Step == session.StepBuilding {
		h.send(ctx, chatID, "Your build is running, hold on.")
		return
	}
	_, replaced := h.sessions.Create(chatID, step)
	if replaced != nil {
		session.RemoveAssets(&replaced.Payload, h.logger)
	}
	h.send(ctx, chatID, prompt)
}

// handleCancel destroys the session and its assets. A session that already
// reached the building step is owned by the orchestrator and cannot be
// cancelled from chat.
func (h *Handler) handleCancel(ctx context.Context, chatID int64) {
	s := h.sessions.Get(chatID)
	if s == nil {
		h.send(ctx, chatID, "Nothing to cancel.")
		return
	}
	if s.Step == session.StepBuilding {
		h.send(ctx, chatID, "The build has already started and cannot be cancelled.")
		return
	}
	h.sessions.Delete(chatID)
	session.RemoveAssets(&s.Payload, h.logger)
	h.send(ctx, chatID, "Cancelled.")
}

func (h *Handler) handleStatus(ctx context.Context, chatID int64) {
	holder := h.lock.Holder()
	if holder == nil {
		h.send(ctx, chatID, "No build is running.")
		return
	}
	h.send(ctx, chatID, fmt.Sprintf(
		"A build has been running for %s (last activity %s ago).",
		holder.Elapsed.Round(time.Second),
		time.Since(holder.LastActivityAt).Round(time.Second)))
}

func (h *Handler) handleUnlock(ctx context.Context, chatID int64) {
	if h.config.AdminChatID == 0 || chatID != h.config.AdminChatID {
		h.send(ctx, chatID, "Unknown command. Send /start for help.")
		return
	}
	h.lock.ForceRelease()
	h.send(ctx, chatID, "Build slot released.")
}

func (h *Handler) handleURL(ctx context.Context, u chat.Update, s *session.Session) {
	raw := strings.TrimSpace(u.Text)
	parsed, err := url.Parse(raw)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		h.send(ctx, u.ChatID, "That does not look like a URL. Send something like https://example.com")
		return
	}
	s.SetURL(raw)
	h.send(ctx, u.ChatID, "What should the app be called?")
}

func (h *Handler) handleName(ctx context.Context, u chat.Update, s *session.Session) {
	name := strings.TrimSpace(u.Text)
	if name == "" || len(name) > 64 {
		h.send(ctx, u.ChatID, "Send a name up to 64 characters.")
		return
	}
	s.SetName(name)
	h.send(ctx, u.ChatID, "Send a photo to use as the app icon, or type \"skip\".")
}

func (h *Handler) handleIcon(ctx context.Context, u chat.Update, s *session.Session) {
	switch {
	case u.PhotoFileID != "":
		dest := filepath.Join(h.config.AssetDir, fmt.Sprintf("%d_icon.png", u.ChatID))
		if err := h.gateway.DownloadFile(ctx, u.PhotoFileID, dest); err != nil {
			h.logger.Error("downloading icon", "chat_id", u.ChatID, "err", err)
			h.send(ctx, u.ChatID, "I could not fetch that photo, try again or type \"skip\".")
			return
		}
		s.SetIcon(dest)
	case strings.EqualFold(strings.TrimSpace(u.Text), "skip"):
		s.SetIcon("")
	default:
		h.send(ctx, u.ChatID, "Send a photo for the icon, or type \"skip\".")
		return
	}
	h.send(ctx, u.ChatID, fmt.Sprintf(
		"Building %q from %s. Type \"yes\" to start or \"no\" to cancel.",
		s.Payload.AppName, s.Payload.URL))
}

func (h *Handler) handleConfirm(ctx context.Context, u chat.Update, s *session.Session) {
	switch strings.ToLower(strings.TrimSpace(u.Text)) {
	case "yes", "y":
		s.Confirm()
		h.startBuild(u)
	case "no", "n":
		h.sessions.Delete(u.ChatID)
		session.RemoveAssets(&s.Payload, h.logger)
		h.send(ctx, u.ChatID, "Cancelled.")
	default:
		h.send(ctx, u.ChatID, "Type \"yes\" to start the build or \"no\" to cancel.")
	}
}

func (h *Handler) handleProjectType(ctx context.Context, u chat.Update, s *session.Session) {
	projectType := strings.ToLower(strings.TrimSpace(u.Text))
	for _, known := range projectTypes {
		if projectType == known {
			s.SetProjectType(projectType)
			h.send(ctx, u.ChatID, "Debug or release build?")
			return
		}
	}
	h.send(ctx, u.ChatID, "Send one of: "+strings.Join(projectTypes, ", "))
}

func (h *Handler) handleBuildType(ctx context.Context, u chat.Update, s *session.Session) {
	buildType := strings.ToLower(strings.TrimSpace(u.Text))
	if buildType != "debug" && buildType != "release" {
		h.send(ctx, u.ChatID, "Send \"debug\" or \"release\".")
		return
	}
	s.SetBuildType(buildType)
	h.send(ctx, u.ChatID, "Now upload the project as a .zip archive.")
}

func (h *Handler) handleUpload(ctx context.Context, u chat.Update, s *session.Session) {
	if u.DocumentFileID == "" || !strings.HasSuffix(strings.ToLower(u.DocumentName), ".zip") {
		h.send(ctx, u.ChatID, "Upload the project as a .zip archive.")
		return
	}
	dest := filepath.Join(h.config.AssetDir, fmt.Sprintf("%d_project.zip", u.ChatID))
	if err := h.gateway.DownloadFile(ctx, u.DocumentFileID, dest); err != nil {
		h.logger.Error("downloading archive", "chat_id", u.ChatID, "err", err)
		h.send(ctx, u.ChatID, "I could not fetch that file, try uploading again.")
		return
	}
	s.SetArchive(dest)
	h.startBuild(u)
}

// startBuild hands the completed session to the orchestrator on its own
// goroutine and context: a build outlives the update that triggered it.
func (h *Handler) startBuild(u chat.Update) {
	go h.builds.Run(context.Background(), u.From, u.ChatID)
}

func (h *Handler) send(ctx context.Context, chatID int64, text string) {
	if _, err := h.gateway.SendMessage(ctx, chatID, text); err != nil {
		h.logger.Warn("sending message", "chat_id", chatID, "err", err)
	}
}
