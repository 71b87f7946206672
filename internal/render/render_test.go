package render

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felo/eml-to-txt/internal/parser"
)

const pdfBytes = "%PDF-1.4\nfake pdf body\n%%EOF\n"

const notesMessage = `From: sender@example.com
To: recipient@example.com
Subject: Notes
Date: Tue, 2 Jan 2024 09:30:00 +0000
Content-Type: multipart/mixed; boundary="X"

--X
Content-Type: text/plain; charset=utf-8

See the attached notes.
--X
Content-Type: application/pdf; name="notes.pdf"
Content-Disposition: attachment; filename="notes.pdf"
Content-Transfer-Encoding: base64

JVBERi0xLjQKZmFrZSBwZGYgYm9keQolJUVPRgo=
--X--
`

func mustParse(t *testing.T, raw string) *parser.Message {
	t.Helper()
	msg, err := parser.Parse([]byte(raw))
	require.NoError(t, err, "test message should parse")
	return msg
}

func TestRender_PlainMessage(t *testing.T) {
	msg := mustParse(t, "Date: Mon, 1 Jan 2024 10:00:00 +0000\r\n"+
		"Subject: Plain\r\n"+
		"X-Mailer: test\r\n"+
		"Cc: cc@example.com\r\n"+
		"To: to@example.com\r\n"+
		"From: from@example.com\r\n"+
		"Bcc: hidden@example.com\r\n"+
		"\r\n"+
		"Hello,\r\nthis is the body.\r\n")

	res, err := Render(msg, Options{SourceName: "plain.eml"}, nil)
	require.NoError(t, err)

	want := strings.Join([]string{
		banner,
		"EMAIL: plain.eml",
		banner,
		"",
		"From: from@example.com",
		"To: to@example.com",
		"Cc: cc@example.com",
		"Subject: Plain",
		"Date: Mon, 1 Jan 2024 10:00:00 +0000",
		"",
		divider,
		"",
		"BODY:",
		"",
		"Hello,\nthis is the body.\n",
		"",
		divider,
		"",
	}, "\n")
	assert.Equal(t, want, res.Text)
	assert.Empty(t, res.Attachments)
	assert.NotContains(t, res.Text, "ATTACHMENTS:")
	assert.NotContains(t, res.Text, "X-Mailer")
	assert.NotContains(t, res.Text, "Bcc")
}

func TestRender_AbsentSubject(t *testing.T) {
	msg := mustParse(t, "From: a@example.com\n\nbody\n")

	res, err := Render(msg, Options{SourceName: "nosubject.eml"}, nil)
	require.NoError(t, err)
	assert.NotContains(t, res.Text, "Subject:")
	assert.Contains(t, res.Text, "From: a@example.com\n\n"+divider)
}

func TestRender_EncodedSubject(t *testing.T) {
	msg := mustParse(t, "Subject: =?UTF-8?B?SGVsbG8=?=\n\nbody\n")

	res, err := Render(msg, Options{SourceName: "encoded.eml"}, nil)
	require.NoError(t, err)
	assert.Contains(t, res.Text, "\nSubject: Hello\n")
}

func TestRender_BodyNotes(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		want     string
		htmlOnly bool
	}{
		{
			name:     "html only",
			raw:      "Content-Type: text/html\n\n<p>hi</p>\n",
			want:     HTMLOnlyNote,
			htmlOnly: true,
		},
		{
			name: "no body at all",
			raw:  "Content-Type: application/pdf\nContent-Disposition: attachment; filename=a.pdf\n\n%PDF\n",
			want: NoBodyNote,
		},
		{
			name: "plain text preferred over html",
			raw: "Content-Type: multipart/alternative; boundary=A\n\n" +
				"--A\nContent-Type: text/html\n\n<p>html</p>\n" +
				"--A\nContent-Type: text/plain\n\nplain\n--A--\n",
			want: "BODY:\n\nplain\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := Render(mustParse(t, tt.raw), Options{SourceName: "m.eml"}, nil)
			require.NoError(t, err)
			assert.Contains(t, res.Text, tt.want)
			assert.Equal(t, tt.htmlOnly, res.HTMLOnly)
			assert.NotContains(t, res.Text, "<p>")
		})
	}
}

func TestRender_ExtractsAttachment(t *testing.T) {
	dir := t.TempDir()
	msg := mustParse(t, notesMessage)

	res, err := Render(msg, Options{
		SourceName:         "example.eml",
		ExtractAttachments: true,
		AttachmentsDir:     dir,
	}, NewNameTable())
	require.NoError(t, err)

	assert.Contains(t, res.Text, "ATTACHMENTS:\n[ATTACHMENT: notes.pdf (application/pdf, ~0.0 KB)] - Saved as: example_notes.pdf\n")
	assert.Contains(t, res.Text, "BODY:\n\nSee the attached notes.\n")

	require.Len(t, res.Attachments, 1)
	att := res.Attachments[0]
	assert.True(t, att.Saved())
	assert.Equal(t, filepath.Join(dir, "example_notes.pdf"), att.Path)
	assert.Equal(t, 1, res.Extracted())

	data, err := os.ReadFile(att.Path)
	require.NoError(t, err)
	assert.Equal(t, pdfBytes, string(data))
	assert.Equal(t, att.Size, len(data))
}

func TestRender_MetadataOnlyWithoutExtraction(t *testing.T) {
	dir := t.TempDir()
	msg := mustParse(t, notesMessage)

	res, err := Render(msg, Options{SourceName: "example.eml", AttachmentsDir: dir}, nil)
	require.NoError(t, err)

	assert.Contains(t, res.Text, "[ATTACHMENT: notes.pdf (application/pdf, ~0.0 KB)]\n")
	assert.NotContains(t, res.Text, "Saved as")
	assert.Equal(t, 0, res.Extracted())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestRender_AttachmentCountMatchesFiles(t *testing.T) {
	dir := t.TempDir()
	msg := mustParse(t, `Content-Type: multipart/mixed; boundary="M"

--M
Content-Type: text/plain

body
--M
Content-Type: image/png
Content-Transfer-Encoding: base64

iVBORw0KGgpJSERS
--M
Content-Type: multipart/related; boundary="R"

--R
Content-Type: application/octet-stream
Content-Transfer-Encoding: base64

AAECAw==
--R
Content-Type: text/csv
Content-Disposition: attachment; filename="data.csv"

a,b
1,2
--R--
--M
Content-Type: application/zip; name="archive.zip"

PK
--M--
`)

	res, err := Render(msg, Options{
		SourceName:         "multi.eml",
		ExtractAttachments: true,
		AttachmentsDir:     dir,
	}, NewNameTable())
	require.NoError(t, err)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 4)
	assert.Equal(t, 4, strings.Count(res.Text, "[ATTACHMENT: "))

	var saved []string
	for _, a := range res.Attachments {
		saved = append(saved, a.SavedName)
		data, err := os.ReadFile(a.Path)
		require.NoError(t, err)
		assert.Equal(t, a.Size, len(data))
	}
	assert.Equal(t, []string{
		"multi_attachment_1.bin",
		"multi_attachment_2.bin",
		"multi_data.csv",
		"multi_archive.zip",
	}, saved)
	assert.Contains(t, res.Text, "[ATTACHMENT: attachment_1.bin (image/png, ~0.0 KB)] - Saved as: multi_attachment_1.bin")
}

func TestRender_SizeInKilobytes(t *testing.T) {
	payload := strings.Repeat("A", 4*1024)
	msg := mustParse(t, "Content-Type: multipart/mixed; boundary=S\n\n"+
		"--S\nContent-Type: application/octet-stream\nContent-Disposition: attachment; filename=big.bin\n\n"+
		payload+"\n--S--\n")

	res, err := Render(msg, Options{SourceName: "big.eml"}, nil)
	require.NoError(t, err)
	assert.Contains(t, res.Text, "[ATTACHMENT: big.bin (application/octet-stream, ~4.0 KB)]")
}

func TestRender_CollisionsAreDeterministic(t *testing.T) {
	dir := t.TempDir()
	names := NewNameTable()
	msg := mustParse(t, notesMessage)

	first, err := Render(msg, Options{
		SourceName: "example.eml", SourcePath: "a/example.eml",
		ExtractAttachments: true, AttachmentsDir: dir,
	}, names)
	require.NoError(t, err)
	second, err := Render(msg, Options{
		SourceName: "example.eml", SourcePath: "b/example.eml",
		ExtractAttachments: true, AttachmentsDir: dir,
	}, names)
	require.NoError(t, err)

	assert.Equal(t, "example_notes.pdf", first.Attachments[0].SavedName)
	assert.Equal(t, "example_notes_1.pdf", second.Attachments[0].SavedName)
	assert.Contains(t, second.Text, "Saved as: example_notes_1.pdf")

	// A fresh run produces the same names again.
	rerun := NewNameTable()
	again, err := Render(msg, Options{
		SourceName: "example.eml", SourcePath: "a/example.eml",
		ExtractAttachments: true, AttachmentsDir: dir,
	}, rerun)
	require.NoError(t, err)
	assert.Equal(t, "example_notes.pdf", again.Attachments[0].SavedName)
}

func TestRender_DuplicateNamesInOneMessage(t *testing.T) {
	dir := t.TempDir()
	msg := mustParse(t, "Content-Type: multipart/mixed; boundary=D\n\n"+
		"--D\nContent-Type: application/pdf\nContent-Disposition: attachment; filename=scan.pdf\n\none\n"+
		"--D\nContent-Type: application/pdf\nContent-Disposition: attachment; filename=scan.pdf\n\ntwo\n"+
		"--D--\n")

	res, err := Render(msg, Options{SourceName: "dup.eml", ExtractAttachments: true, AttachmentsDir: dir}, NewNameTable())
	require.NoError(t, err)
	require.Len(t, res.Attachments, 2)
	assert.Equal(t, "dup_scan.pdf", res.Attachments[0].SavedName)
	assert.Equal(t, "dup_scan_1.pdf", res.Attachments[1].SavedName)

	one, err := os.ReadFile(filepath.Join(dir, "dup_scan.pdf"))
	require.NoError(t, err)
	two, err := os.ReadFile(filepath.Join(dir, "dup_scan_1.pdf"))
	require.NoError(t, err)
	assert.Equal(t, "one", string(one))
	assert.Equal(t, "two", string(two))
}

func TestRender_LongNamesStayWithinLimit(t *testing.T) {
	dir := t.TempDir()
	source := strings.Repeat("s", 76) + ".eml"
	attName := strings.Repeat("r", 198) + ".pdf"
	part := "--L\nContent-Type: application/pdf\nContent-Disposition: attachment; filename=\"" + attName + "\"\n\n%PDF\n"
	msg := mustParse(t, "Content-Type: multipart/mixed; boundary=L\n\n"+part+part+"--L--\n")

	res, err := Render(msg, Options{SourceName: source, ExtractAttachments: true, AttachmentsDir: dir}, NewNameTable())
	require.NoError(t, err)
	require.Len(t, res.Attachments, 2)
	assert.Empty(t, res.WriteErrors())

	first, second := res.Attachments[0], res.Attachments[1]
	assert.LessOrEqual(t, len(first.SavedName), maxFilenameLen)
	assert.LessOrEqual(t, len(second.SavedName), maxFilenameLen)
	assert.True(t, strings.HasPrefix(first.SavedName, strings.Repeat("s", 76)+"_rrr"))
	assert.True(t, strings.HasSuffix(first.SavedName, ".pdf"))
	assert.True(t, strings.HasSuffix(second.SavedName, "_1.pdf"))
	assert.NotEqual(t, first.SavedName, second.SavedName)
	assert.Contains(t, res.Text, "[ATTACHMENT: "+attName+" (application/pdf, ~0.0 KB)] - Saved as: "+first.SavedName)

	for _, a := range res.Attachments {
		data, err := os.ReadFile(a.Path)
		require.NoError(t, err)
		assert.Equal(t, "%PDF", string(data))
	}
}

func TestNameTable_ClaimBoundsSuffixedNames(t *testing.T) {
	names := NewNameTable()
	long := strings.Repeat("n", 300) + ".txt"

	first := names.Claim("/out", long, "a.eml")
	second := names.Claim("/out", long, "a.eml")
	assert.Len(t, first, maxFilenameLen)
	assert.Len(t, second, maxFilenameLen)
	assert.Equal(t, strings.Repeat("n", 196)+".txt", first)
	assert.Equal(t, strings.Repeat("n", 194)+"_1.txt", second)

	// Multi-byte runes are never split.
	wide := names.Claim("/out", strings.Repeat("é", 150), "a.eml")
	assert.LessOrEqual(t, len(wide), maxFilenameLen)
	assert.True(t, utf8.ValidString(wide))
}

func TestRender_CarriesDecodeWarnings(t *testing.T) {
	msg := mustParse(t, "Subject: w\nX-Weird header without colon\nContent-Type: text/plain; charset=x-klingon\n\nqapla\n")

	res, err := Render(msg, Options{SourceName: "w.eml"}, nil)
	require.NoError(t, err)
	require.Len(t, res.Warnings, 2)
	assert.Equal(t, parser.WarnHeader, res.Warnings[0].Kind)
	assert.Equal(t, parser.WarnCharset, res.Warnings[1].Kind)
	assert.Contains(t, res.Text, "BODY:\n\nqapla\n")
}

func TestRender_WriteFailureKeepsText(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "does", "not", "exist")
	msg := mustParse(t, notesMessage)

	res, err := Render(msg, Options{SourceName: "example.eml", ExtractAttachments: true, AttachmentsDir: missing}, nil)
	require.NoError(t, err)

	require.Len(t, res.Attachments, 1)
	var werr *AttachmentWriteError
	require.ErrorAs(t, res.Attachments[0].Err, &werr)
	assert.Equal(t, "notes.pdf", werr.Name)
	assert.Len(t, res.WriteErrors(), 1)
	assert.Equal(t, 0, res.Extracted())

	assert.Contains(t, res.Text, "See the attached notes.")
	assert.Contains(t, res.Text, "[ATTACHMENT: notes.pdf (application/pdf, ~0.0 KB)]\n")
	assert.NotContains(t, res.Text, "Saved as")
}

func TestRender_RequiresAttachmentsDir(t *testing.T) {
	_, err := Render(mustParse(t, notesMessage), Options{SourceName: "x.eml", ExtractAttachments: true}, nil)
	assert.Error(t, err)
}

func TestNameTable_SeededOwners(t *testing.T) {
	dir := "/out/attachments"
	names := NewNameTable()
	names.Seed(map[string]string{
		filepath.Join(dir, "report_a.pdf"): "/in/one/report.eml",
	})

	assert.Equal(t, "report_a.pdf", names.Claim(dir, "report_a.pdf", "/in/one/report.eml"),
		"the owning source may overwrite its own file")
	assert.Equal(t, "report_b.pdf", names.Claim(dir, "report_b.pdf", "/in/two/report.eml"))

	other := NewNameTable()
	other.Seed(map[string]string{
		filepath.Join(dir, "report_a.pdf"): "/in/one/report.eml",
	})
	assert.Equal(t, "report_a_1.pdf", other.Claim(dir, "report_a.pdf", "/in/two/report.eml"),
		"another source must not clobber an earlier run's file")
}

func TestSanitizeFilename(t *testing.T) {
	long := strings.Repeat("x", 250) + ".pdf"

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"plain", "notes.pdf", "notes.pdf"},
		{"path separators", "../../etc/passwd", ".._.._etc_passwd"},
		{"reserved characters", `a<b>c:d"e|f?g*h\i.txt`, "a_b_c_d_e_f_g_h_i.txt"},
		{"control characters", "tab\tnew\nline.txt", "tab_new_line.txt"},
		{"dot", ".", "_"},
		{"unicode kept", "Invitación.bin", "Invitación.bin"},
		{"long name keeps extension", long, strings.Repeat("x", 196) + ".pdf"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := sanitizeFilename(tt.input)
			assert.Equal(t, tt.want, got)
			assert.LessOrEqual(t, len(got), maxFilenameLen)
		})
	}
}
