package mail

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	message "github.com/emersion/go-message"
	msgmail "github.com/emersion/go-message/mail"

	"github.com/Guizzs26/go-imei-sync/pkg/encoding"
)

const (
	DefaultMailbox    = "INBOX"
	DefaultMaxChecked = 50
	DefaultMaxMatches = 10
	dialTimeout       = 30 * time.Second
	tempDirPattern    = "imeisync_excel_"
)

func init() {
	imap.CharsetReader = encoding.CharsetReader
	message.CharsetReader = encoding.CharsetReader
}

// session is the subset of the go-imap client the fetcher drives
type session interface {
	Login(username, password string) error
	Select(name string, readOnly bool) (*imap.MailboxStatus, error)
	Search(criteria *imap.SearchCriteria) ([]uint32, error)
	Fetch(seqset *imap.SeqSet, items []imap.FetchItem, ch chan *imap.Message) error
	Store(seqset *imap.SeqSet, item imap.StoreItem, value interface{}, ch chan *imap.Message) error
	List(ref, name string, ch chan *imap.MailboxInfo) error
	Logout() error
}

// IMAPConfig holds the mailbox account
type IMAPConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	TLS      bool
}

// SearchRequest narrows which messages are inspected
type SearchRequest struct {
	Mailbox    string
	Filter     string
	TodayOnly  bool
	MaxChecked int
	MaxMatches int
	DownloadTo string // parent of the temp dir, empty means os.TempDir
}

// DownloadResult lists the workbooks saved from matching messages.
// The caller owns TempDir and must remove it.
type DownloadResult struct {
	Found   int
	Checked int
	Matched int
	Files   []string
	TempDir string
}

// Fetcher downloads spreadsheet attachments from an IMAP mailbox
type Fetcher struct {
	cfg    IMAPConfig
	logger *slog.Logger
	dial   func() (session, error)
	now    func() time.Time
}

func NewFetcher(cfg IMAPConfig, logger *slog.Logger) *Fetcher {
	f := &Fetcher{cfg: cfg, logger: logger, now: time.Now}
	f.dial = f.dialIMAP
	return f
}

func (f *Fetcher) dialIMAP() (session, error) {
	addr := net.JoinHostPort(f.cfg.Host, strconv.Itoa(f.cfg.Port))
	dialer := &net.Dialer{Timeout: dialTimeout}

	var (
		c   *client.Client
		err error
	)
	if f.cfg.TLS {
		c, err = client.DialWithDialerTLS(dialer, addr, nil)
	} else {
		c, err = client.DialWithDialer(dialer, addr)
	}
	if err != nil {
		return nil, fmt.Errorf("dial imap %s: %w", addr, err)
	}
	c.Timeout = dialTimeout
	return c, nil
}

func (f *Fetcher) connect() (session, error) {
	s, err := f.dial()
	if err != nil {
		return nil, err
	}
	if err := s.Login(f.cfg.User, f.cfg.Password); err != nil {
		_ = s.Logout()
		return nil, fmt.Errorf("imap login: %w", err)
	}
	return s, nil
}

// Folders lists every mailbox visible to the account
func (f *Fetcher) Folders(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s, err := f.connect()
	if err != nil {
		return nil, err
	}
	defer s.Logout()

	ch := make(chan *imap.MailboxInfo, 10)
	done := make(chan error, 1)
	go func() { done <- s.List("", "*", ch) }()

	var names []string
	for info := range ch {
		names = append(names, info.Name)
	}
	if err := <-done; err != nil {
		return nil, fmt.Errorf("list mailboxes: %w", err)
	}
	return names, nil
}

// Download inspects up to MaxChecked messages, stops after MaxMatches
// matching subjects, and saves their .xls/.xlsx attachments
func (f *Fetcher) Download(ctx context.Context, req SearchRequest) (DownloadResult, error) {
	req = withDefaults(req)
	filter := ParseFilter(req.Filter)
	log := f.logger.With("mailbox", req.Mailbox, "filter", req.Filter)

	s, err := f.connect()
	if err != nil {
		return DownloadResult{}, err
	}
	defer s.Logout()

	if _, err := s.Select(req.Mailbox, false); err != nil {
		return DownloadResult{}, fmt.Errorf("select %q: %w", req.Mailbox, err)
	}

	criteria := imap.NewSearchCriteria()
	if req.TodayOnly {
		y, m, d := f.now().Date()
		today := time.Date(y, m, d, 0, 0, 0, 0, time.Local)
		criteria.Since = today
		criteria.Before = today.AddDate(0, 0, 1)
	}
	ids, err := s.Search(criteria)
	if err != nil {
		return DownloadResult{}, fmt.Errorf("imap search: %w", err)
	}

	res := DownloadResult{Found: len(ids)}
	if len(ids) == 0 {
		log.Info("No messages found")
		return res, nil
	}
	if len(ids) > req.MaxChecked {
		log.Info("Limiting messages inspected", "found", len(ids), "max", req.MaxChecked)
		ids = ids[:req.MaxChecked]
	}

	dir, err := os.MkdirTemp(req.DownloadTo, tempDirPattern)
	if err != nil {
		return res, fmt.Errorf("create download dir: %w", err)
	}
	res.TempDir = dir

	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if res.Matched >= req.MaxMatches {
			log.Info("Match limit reached", "max", req.MaxMatches)
			break
		}
		res.Checked++

		subject, err := fetchSubject(s, id)
		if err != nil {
			log.Warn("Failed to read subject", "seq", id, "error", err)
			continue
		}
		if !filter.Matches(subject) {
			continue
		}
		res.Matched++
		log.Info("Matching message", "seq", id, "subject", subject)

		files, err := saveAttachments(s, id, dir)
		if err != nil {
			log.Warn("Failed to download message", "seq", id, "error", err)
			continue
		}
		res.Files = append(res.Files, files...)
		for _, name := range files {
			log.Info("Attachment saved", "file", filepath.Base(name))
		}

		seq := new(imap.SeqSet)
		seq.AddNum(id)
		if err := s.Store(seq, imap.FormatFlagsOp(imap.AddFlags, true), []interface{}{imap.SeenFlag}, nil); err != nil {
			log.Warn("Failed to flag message as seen", "seq", id, "error", err)
		}
	}

	return res, nil
}

func withDefaults(req SearchRequest) SearchRequest {
	if strings.TrimSpace(req.Mailbox) == "" {
		req.Mailbox = DefaultMailbox
	}
	if req.MaxChecked <= 0 {
		req.MaxChecked = DefaultMaxChecked
	}
	if req.MaxMatches <= 0 {
		req.MaxMatches = DefaultMaxMatches
	}
	return req
}

// fetchOne runs a FETCH for a single message and returns it
func fetchOne(s session, id uint32, items []imap.FetchItem) (*imap.Message, error) {
	seq := new(imap.SeqSet)
	seq.AddNum(id)

	ch := make(chan *imap.Message, 1)
	done := make(chan error, 1)
	go func() { done <- s.Fetch(seq, items, ch) }()

	var msg *imap.Message
	for m := range ch {
		msg = m
	}
	if err := <-done; err != nil {
		return nil, err
	}
	if msg == nil {
		return nil, fmt.Errorf("message %d not returned", id)
	}
	return msg, nil
}

// fetchSubject reads the envelope only, which leaves \Seen untouched
func fetchSubject(s session, id uint32) (string, error) {
	msg, err := fetchOne(s, id, []imap.FetchItem{imap.FetchEnvelope})
	if err != nil {
		return "", err
	}
	if msg.Envelope == nil {
		return "", nil
	}
	return msg.Envelope.Subject, nil
}

func saveAttachments(s session, id uint32, dir string) ([]string, error) {
	section := &imap.BodySectionName{Peek: true}
	msg, err := fetchOne(s, id, []imap.FetchItem{section.FetchItem()})
	if err != nil {
		return nil, err
	}
	body := msg.GetBody(section)
	if body == nil {
		return nil, errors.New("server returned no body")
	}

	mr, err := msgmail.CreateReader(body)
	if err != nil && !message.IsUnknownCharset(err) {
		return nil, fmt.Errorf("parse message: %w", err)
	}

	var files []string
	for {
		p, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if message.IsUnknownCharset(err) {
				continue
			}
			return files, fmt.Errorf("read part: %w", err)
		}

		h, ok := p.Header.(*msgmail.AttachmentHeader)
		if !ok {
			continue
		}
		name, _ := h.Filename()
		if !isWorkbook(name) {
			continue
		}
		path, err := writeAttachment(dir, name, p.Body)
		if err != nil {
			return files, err
		}
		files = append(files, path)
	}
	return files, nil
}

func isWorkbook(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	return ext == ".xls" || ext == ".xlsx"
}

// writeAttachment stores r under dir, suffixing the name when a previous
// message already left a file with the same name
func writeAttachment(dir, name string, r io.Reader) (string, error) {
	base := filepath.Base(name)
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)

	path := filepath.Join(dir, base)
	for i := 2; ; i++ {
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			break
		}
		path = filepath.Join(dir, fmt.Sprintf("%s_%d%s", stem, i, ext))
	}

	out, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create %s: %w", base, err)
	}
	if _, err := io.Copy(out, r); err != nil {
		out.Close()
		return "", fmt.Errorf("write %s: %w", base, err)
	}
	return path, out.Close()
}
