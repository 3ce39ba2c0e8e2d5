package types

// Identity is the profile bound to one live connection.
type Identity struct {
	ConnectionId string `json:"-"`
	Username     string `json:"username"`
	Room         string `json:"room"`
	Color        string `json:"color,omitempty"`
	Status       string `json:"status"`
}

type ReplyRef struct {
	Id   string `json:"id"`
	User string `json:"user"`
	Text string `json:"text"`
}

// Attachment carries the file payload inline as a data URI.
type Attachment struct {
	Filename string `json:"filename"`
	Mimetype string `json:"mimetype"`
	Url      string `json:"url"`
}

type Message struct {
	Id        string              `json:"id"`
	User      string              `json:"user"`
	Text      string              `json:"text"`
	Time      int64               `json:"time"`
	Edited    bool                `json:"edited"`
	ReplyTo   *ReplyRef           `json:"replyTo"`
	File      *Attachment         `json:"file"`
	Reactions map[string][]string `json:"reactions"`
	ThreadId  string              `json:"threadId,omitempty"`
	Mentions  []string            `json:"mentions,omitempty"`
}

type RoomMeta struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	IsPrivate   bool   `json:"isPrivate"`
}

// RoomSummary is a room directory entry.
type RoomSummary struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Members     int    `json:"members"`
}

type ThreadMessage struct {
	Id     string `json:"id"`
	User   string `json:"user"`
	Text   string `json:"text"`
	Time   int64  `json:"time"`
	Edited bool   `json:"edited"`
}

type Thread struct {
	Id          string          `json:"threadId"`
	ParentMsgId string          `json:"parentMsgId"`
	Room        string          `json:"room"`
	Messages    []ThreadMessage `json:"messages"`
}
