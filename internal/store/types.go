package store

import (
	"database/sql/driver"
	"fmt"
	"strings"
	"time"

	json "github.com/goccy/go-json"
)

// Kind selects the record table.
type Kind string

const (
	KindProject    Kind = "project"
	KindTechnician Kind = "technician"
)

func (k Kind) table() (string, error) {
	switch k {
	case KindProject:
		return "project_records", nil
	case KindTechnician:
		return "technician_records", nil
	default:
		return "", fmt.Errorf("unknown record kind %q", k)
	}
}

// Record is a persisted project or technician posting keyed by the provider message id.
type Record struct {
	ID         string     `db:"id" json:"id"`
	Title      string     `db:"title" json:"title"`
	Address    string     `db:"address" json:"address"`
	Body       string     `db:"body" json:"body"`
	ReceivedAt *time.Time `db:"received_at" json:"receivedAt"`
	Remark     string     `db:"remark" json:"remark"`
	Country    int        `db:"country" json:"country"`
	Skills     SkillList  `db:"skills" json:"skills"`
	Price      int        `db:"price" json:"price"`
	CreatedAt  time.Time  `db:"created_at" json:"createdAt"`
}

// SkillList is stored as a comma-joined lower-case string.
type SkillList []string

func (s SkillList) Value() (driver.Value, error) {
	return strings.Join(s, ","), nil
}

func (s *SkillList) Scan(src any) error {
	var raw string
	switch v := src.(type) {
	case nil:
		*s = SkillList{}
		return nil
	case string:
		raw = v
	case []byte:
		raw = string(v)
	default:
		return fmt.Errorf("scan skills: unsupported type %T", src)
	}

	out := SkillList{}
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	*s = out
	return nil
}

// SentMail is one entry of the outgoing mail log.
type SentMail struct {
	MessageID   string    `db:"message_id" json:"messageId"`
	ThreadID    string    `db:"thread_id" json:"threadId"`
	SentAt      time.Time `db:"sent_at" json:"sentAt"`
	To          string    `db:"to_addrs" json:"to"`
	Cc          string    `db:"cc_addrs" json:"cc"`
	Subject     string    `db:"subject" json:"subject"`
	Body        string    `db:"body" json:"body"`
	Attachments NameList  `db:"attachments" json:"attachments"`
	MailType    string    `db:"mail_type" json:"mailType"`
}

// NameList is stored as a JSON array of attachment file names.
type NameList []string

func (n NameList) Value() (driver.Value, error) {
	if n == nil {
		return "[]", nil
	}
	data, err := json.Marshal([]string(n))
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

func (n *NameList) Scan(src any) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*n = NameList{}
		return nil
	case string:
		raw = []byte(v)
	case []byte:
		raw = v
	default:
		return fmt.Errorf("scan attachments: unsupported type %T", src)
	}

	var names []string
	if err := json.Unmarshal(raw, &names); err != nil {
		return fmt.Errorf("scan attachments: %w", err)
	}
	if names == nil {
		names = []string{}
	}
	*n = names
	return nil
}

// Filter narrows record listings. Zero values disable a condition.
type Filter struct {
	Country  *int
	Skill    string
	Since    time.Time
	Page     int
	PageSize int
}

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// NormalizePage applies the listing defaults: page 1, 20 items, at most 100.
func NormalizePage(page, size int) (int, int) {
	if page < 1 {
		page = 1
	}
	if size <= 0 {
		size = DefaultPageSize
	}
	if size > MaxPageSize {
		size = MaxPageSize
	}
	return page, size
}
