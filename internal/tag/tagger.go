package tag

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/bogem/id3v2/v2"
	"github.com/go-flac/flacpicture"
	"github.com/go-flac/flacvorbis"
	flac "github.com/go-flac/go-flac"

	errpkg "github.com/tracktide/tracktide/internal/errors"
	"github.com/tracktide/tracktide/internal/storage"
)

var forbiddenNames = regexp.MustCompile(`[\\/<>:"|?*\x00-\x1f]`)

const unknownField = "Unknown"

// Metadata is everything the tagger embeds into a finished audio file.
type Metadata struct {
	Title       string
	Artist      string
	Album       string
	TrackNumber int
	Format      string // "mp3" or "flac"
	Cover       []byte
	Lyrics      string
}

// Tagger post-processes completed plaintext audio files: moves them to their
// final library path, embeds metadata and writes the lyrics companion file.
type Tagger struct {
	root   string
	files  *storage.FileStorage
	logger *slog.Logger
}

// NewTagger creates a Tagger rooted at the download directory.
func NewTagger(root string, files *storage.FileStorage, logger *slog.Logger) *Tagger {
	return &Tagger{root: root, files: files, logger: logger}
}

// Finalize moves tmpPath to <root>/<artist>/<album>/<title>.<ext> and embeds
// the metadata. Embedding failure is non-fatal: the file stays at its
// destination with raw audio intact. The move itself failing is a storage
// failure.
func (t *Tagger) Finalize(tmpPath string, md Metadata) (string, error) {
	finalPath := t.destinationPath(md)

	if err := t.files.Promote(tmpPath, finalPath); err != nil {
		return "", fmt.Errorf("%w: %v", errpkg.ErrStorage, err)
	}

	if err := t.embed(finalPath, md); err != nil {
		t.logger.Warn("metadata embedding failed, keeping untagged file",
			"path", finalPath,
			"error", err,
		)
	}

	if md.Lyrics != "" {
		lrcPath := strings.TrimSuffix(finalPath, filepath.Ext(finalPath)) + ".lrc"
		if err := os.WriteFile(lrcPath, []byte(md.Lyrics), 0o644); err != nil {
			t.logger.Warn("failed to write lyrics file", "path", lrcPath, "error", err)
		}
	}

	return finalPath, nil
}

func (t *Tagger) destinationPath(md Metadata) string {
	artist := Sanitize(md.Artist)
	album := Sanitize(md.Album)
	title := Sanitize(md.Title)

	ext := ".mp3"
	if md.Format == "flac" {
		ext = ".flac"
	}
	return filepath.Join(t.root, artist, album, title+ext)
}

func (t *Tagger) embed(path string, md Metadata) error {
	var err error
	if md.Format == "flac" {
		err = embedFLAC(path, md)
	} else {
		err = embedMP3(path, md)
	}
	if err != nil {
		return fmt.Errorf("%w: %v", errpkg.ErrTagging, err)
	}
	return nil
}

func embedMP3(path string, md Metadata) error {
	tag, err := id3v2.Open(path, id3v2.Options{Parse: true})
	if err != nil {
		return fmt.Errorf("open id3 tag: %w", err)
	}
	defer tag.Close()

	tag.SetDefaultEncoding(id3v2.EncodingUTF8)
	tag.SetTitle(md.Title)
	tag.SetArtist(md.Artist)
	tag.SetAlbum(md.Album)
	if md.TrackNumber > 0 {
		tag.AddTextFrame(tag.CommonID("Track number/Position in set"), id3v2.EncodingUTF8, strconv.Itoa(md.TrackNumber))
	}

	if len(md.Cover) > 0 {
		tag.AddAttachedPicture(id3v2.PictureFrame{
			Encoding:    id3v2.EncodingUTF8,
			MimeType:    "image/jpeg",
			PictureType: id3v2.PTFrontCover,
			Description: "Front cover",
			Picture:     md.Cover,
		})
	}

	if md.Lyrics != "" {
		tag.AddUnsynchronisedLyricsFrame(id3v2.UnsynchronisedLyricsFrame{
			Encoding:          id3v2.EncodingUTF8,
			Language:          "eng",
			ContentDescriptor: "",
			Lyrics:            md.Lyrics,
		})
	}

	return tag.Save()
}

func embedFLAC(path string, md Metadata) error {
	f, err := flac.ParseFile(path)
	if err != nil {
		return fmt.Errorf("parse flac: %w", err)
	}

	comments := flacvorbis.New()
	if err := comments.Add(flacvorbis.FIELD_TITLE, md.Title); err != nil {
		return fmt.Errorf("add title: %w", err)
	}
	if err := comments.Add(flacvorbis.FIELD_ARTIST, md.Artist); err != nil {
		return fmt.Errorf("add artist: %w", err)
	}
	if err := comments.Add(flacvorbis.FIELD_ALBUM, md.Album); err != nil {
		return fmt.Errorf("add album: %w", err)
	}
	if md.TrackNumber > 0 {
		if err := comments.Add(flacvorbis.FIELD_TRACKNUMBER, strconv.Itoa(md.TrackNumber)); err != nil {
			return fmt.Errorf("add track number: %w", err)
		}
	}
	if md.Lyrics != "" {
		if err := comments.Add("LYRICS", md.Lyrics); err != nil {
			return fmt.Errorf("add lyrics: %w", err)
		}
	}
	commentBlock := comments.Marshal()
	f.Meta = append(f.Meta, &commentBlock)

	if len(md.Cover) > 0 {
		picture, err := flacpicture.NewFromImageData(flacpicture.PictureTypeFrontCover, "Front cover", md.Cover, "image/jpeg")
		if err != nil {
			return fmt.Errorf("build picture block: %w", err)
		}
		pictureBlock := picture.Marshal()
		f.Meta = append(f.Meta, &pictureBlock)
	}

	return f.Save(path)
}

// Sanitize strips filesystem-unsafe characters from a path component.
func Sanitize(name string) string {
	name = forbiddenNames.ReplaceAllString(name, "_")
	name = strings.Trim(name, " .")
	if name == "" {
		return unknownField
	}
	return name
}
