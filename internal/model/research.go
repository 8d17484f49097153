package model

// Paper は論文検索APIから取得した論文情報。
type Paper struct {
	ID        string
	Title     string
	Authors   []string
	Abstract  string
	URL       string
	Year      int
	Citations int
}

// Book は書籍カタログのエントリ。
type Book struct {
	ID          string
	Title       string
	Authors     []string
	Description string
	StoreURL    string
	ImageURL    string
	Rating      float64
}
