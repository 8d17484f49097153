package history

import (
	"bytes"
	_ "embed"
	"fmt"
	"time"

	"github.com/go-pdf/fpdf"

	"github.com/hitoshi/unwind/internal/model"
)

const (
	pdfFont       = "DejaVu"
	pdfLineHeight = 6.0
)

// DejaVu Sansはラテン、キリル、ギリシャ文字等をカバーする。CJKと絵文字のグリフは含まない。
var (
	//go:embed fonts/DejaVuSansCondensed.ttf
	fontRegular []byte
	//go:embed fonts/DejaVuSansCondensed-Bold.ttf
	fontBold []byte
	//go:embed fonts/DejaVuSansCondensed-Oblique.ttf
	fontItalic []byte
)

// RenderTranscript はセッションの記録をA4のPDFとして描画する。
// 要約がある場合は本文の前に置く。テキストはUTF-8フォントで埋め込む。
func RenderTranscript(session *model.ChatSession, messages []*model.Message) ([]byte, error) {
	return renderTranscript(session, messages, true)
}

func renderTranscript(session *model.ChatSession, messages []*model.Message, compress bool) ([]byte, error) {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetCompression(compress)
	pdf.AddUTF8FontFromBytes(pdfFont, "", fontRegular)
	pdf.AddUTF8FontFromBytes(pdfFont, "B", fontBold)
	pdf.AddUTF8FontFromBytes(pdfFont, "I", fontItalic)
	pdf.SetMargins(18, 18, 18)
	pdf.SetAutoPageBreak(true, 18)
	pdf.SetTitle(session.Title, true)
	pdf.SetCreator("Unwind", true)
	pdf.AliasNbPages("")
	pdf.SetFooterFunc(func() {
		pdf.SetY(-12)
		pdf.SetFont(pdfFont, "I", 8)
		pdf.CellFormat(0, 8, fmt.Sprintf("Page %d/{nb}", pdf.PageNo()), "", 0, "C", false, 0, "")
	})

	pdf.AddPage()

	title := session.Title
	if title == "" {
		title = "Untitled session"
	}
	pdf.SetFont(pdfFont, "B", 16)
	pdf.MultiCell(0, 9, title, "", "L", false)

	pdf.SetFont(pdfFont, "", 9)
	pdf.SetTextColor(110, 110, 110)
	pdf.MultiCell(0, 5, fmt.Sprintf("Started %s  |  %d messages",
		session.CreatedAt.UTC().Format(time.RFC1123), len(messages)), "", "L", false)
	pdf.SetTextColor(0, 0, 0)
	pdf.Ln(4)

	if session.Summary != nil && *session.Summary != "" {
		pdf.SetFont(pdfFont, "B", 11)
		pdf.MultiCell(0, pdfLineHeight, "Summary", "", "L", false)
		pdf.SetFont(pdfFont, "", 10)
		pdf.MultiCell(0, pdfLineHeight, *session.Summary, "", "L", false)
		pdf.Ln(4)
	}

	for _, m := range messages {
		speaker := "You"
		if m.Role == model.RoleAssistant {
			speaker = "Unwind"
		}
		pdf.SetFont(pdfFont, "B", 10)
		pdf.MultiCell(0, pdfLineHeight, fmt.Sprintf("%s  (%s)", speaker, m.CreatedAt.UTC().Format("2006-01-02 15:04")), "", "L", false)
		pdf.SetFont(pdfFont, "", 10)
		pdf.MultiCell(0, pdfLineHeight, m.Content, "", "L", false)
		pdf.Ln(2)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("failed to render transcript pdf: %w", err)
	}
	return buf.Bytes(), nil
}
