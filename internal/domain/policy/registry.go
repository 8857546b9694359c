// Пакет policy — статическая матрица политик загрузки.
//
// Registry строится один раз при старте процесса, проверяет согласованность
// таблиц (каждое расширение соответствует хотя бы одному MIME-типу и
// наоборот) и далее только читается, поэтому синхронизация не нужна.
package policy

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/bigkaa/docstore/internal/domain/docerr"
	"github.com/bigkaa/docstore/internal/domain/model"
)

// Wildcard — разрешает любой зарегистрированный MIME-тип.
const Wildcard = "*"

// ValidationPolicy — правило для одного типа документа.
// AllowedMimeTypes может содержать точные типы, шаблоны вида "video/*" или "*".
type ValidationPolicy struct {
	AllowedMimeTypes  []string
	AllowedExtensions []string
	MaxSizeBytes      int64
}

// Decision — результат успешной проверки загрузки.
type Decision struct {
	Extension string
	Category  Category
	// Ceiling — применённый потолок размера
	Ceiling int64
}

// Registry — неизменяемый реестр политик.
type Registry struct {
	policies map[string]ValidationPolicy
	deny     map[string]bool
}

// NewRegistry создаёт реестр и проверяет согласованность политик.
func NewRegistry(policies map[string]ValidationPolicy) (*Registry, error) {
	r := &Registry{
		policies: make(map[string]ValidationPolicy, len(policies)),
		deny:     make(map[string]bool, len(dangerousExtensions)),
	}
	for _, ext := range dangerousExtensions {
		r.deny[ext] = true
	}

	for name, p := range policies {
		if name == "" {
			return nil, fmt.Errorf("пустое имя типа документа")
		}
		if p.MaxSizeBytes <= 0 {
			return nil, fmt.Errorf("политика %q: max_size должен быть положительным", name)
		}
		normalized := ValidationPolicy{
			AllowedMimeTypes:  normalizeAll(p.AllowedMimeTypes, normalizeMime),
			AllowedExtensions: normalizeAll(p.AllowedExtensions, strings.ToLower),
			MaxSizeBytes:      p.MaxSizeBytes,
		}
		if err := r.checkConsistency(name, normalized); err != nil {
			return nil, err
		}
		r.policies[name] = normalized
	}
	return r, nil
}

// Default возвращает реестр со встроенной матрицей DefaultPolicies.
// Паникует, если встроенная матрица несогласована.
func Default() *Registry {
	r, err := NewRegistry(DefaultPolicies)
	if err != nil {
		panic(fmt.Sprintf("встроенная матрица политик несогласована: %v", err))
	}
	return r
}

// checkConsistency проверяет взаимное покрытие расширений и MIME-типов.
func (r *Registry) checkConsistency(name string, p ValidationPolicy) error {
	if len(p.AllowedMimeTypes) == 0 || len(p.AllowedExtensions) == 0 {
		return fmt.Errorf("политика %q: списки MIME-типов и расширений не могут быть пустыми", name)
	}

	for _, ext := range p.AllowedExtensions {
		if r.deny[ext] {
			return fmt.Errorf("политика %q: расширение %s в deny-списке", name, ext)
		}
		covered := false
		for mime, entry := range mimeTable {
			if p.allowsMime(mime) && slices.Contains(entry.extensions, ext) {
				covered = true
				break
			}
		}
		if !covered {
			return fmt.Errorf("политика %q: расширению %s не соответствует ни один разрешённый MIME-тип", name, ext)
		}
	}

	for _, pattern := range p.AllowedMimeTypes {
		covered := false
		for mime, entry := range mimeTable {
			if !matchesMime(mime, pattern) {
				continue
			}
			for _, ext := range entry.extensions {
				if slices.Contains(p.AllowedExtensions, ext) {
					covered = true
					break
				}
			}
			if covered {
				break
			}
		}
		if !covered {
			return fmt.Errorf("политика %q: MIME-типу %s не соответствует ни одно разрешённое расширение", name, pattern)
		}
	}
	return nil
}

// PolicyFor возвращает политику типа документа.
func (r *Registry) PolicyFor(documentType string) (ValidationPolicy, error) {
	p, ok := r.policies[documentType]
	if !ok {
		return ValidationPolicy{}, fmt.Errorf("%w: %q", docerr.ErrUnknownDocumentType, documentType)
	}
	return p, nil
}

// DocumentTypes возвращает отсортированный список зарегистрированных типов.
func (r *Registry) DocumentTypes() []string {
	return slices.Sorted(maps.Keys(r.policies))
}

// CategoryOf возвращает категорию MIME-типа; для незарегистрированных — unknown.
func (r *Registry) CategoryOf(mimeType string) Category {
	entry, ok := mimeTable[normalizeMime(mimeType)]
	if !ok {
		return CategoryUnknown
	}
	return entry.category
}

// CeilingFor возвращает общий потолок размера категории.
func (r *Registry) CeilingFor(c Category) int64 {
	if v, ok := categoryCeilings[c]; ok {
		return v
	}
	return categoryCeilings[CategoryUnknown]
}

// DangerousExtension ищет запрещённое расширение среди всех сегментов имени.
// Ловит и заявленное расширение, и двойные расширения вида report.exe.pdf.
func (r *Registry) DangerousExtension(name string) (string, bool) {
	parts := strings.Split(strings.ToLower(name), ".")
	for _, seg := range parts[1:] {
		ext := "." + strings.TrimSpace(seg)
		if r.deny[ext] {
			return ext, true
		}
	}
	return "", false
}

// Validate проверяет загрузку по порядку: MIME-тип, расширение для MIME-типа,
// deny-список, размер. size — фактический (или заявленный для потока) размер.
func (r *Registry) Validate(info model.FileInfo, size int64) (Decision, error) {
	mime := normalizeMime(info.MimeType)
	ext := info.Extension()

	var (
		p         ValidationPolicy
		hasPolicy bool
	)
	if info.DocumentType != "" {
		var err error
		if p, err = r.PolicyFor(info.DocumentType); err != nil {
			return Decision{}, err
		}
		hasPolicy = true
	}

	entry, known := mimeTable[mime]

	// (a) MIME-тип
	if !known || (hasPolicy && !p.allowsMime(mime)) {
		return Decision{}, fmt.Errorf("%w: %q (тип документа %q)", docerr.ErrDisallowedMimeType, info.MimeType, info.DocumentType)
	}

	// (b) расширение допустимо для этого MIME-типа
	if !slices.Contains(entry.extensions, ext) || (hasPolicy && !slices.Contains(p.AllowedExtensions, ext)) {
		return Decision{}, fmt.Errorf("%w: %q для %s", docerr.ErrExtensionMismatch, ext, mime)
	}

	// (c) deny-список
	if bad, found := r.DangerousExtension(info.OriginalName); found {
		return Decision{}, fmt.Errorf("%w: %s в имени %q", docerr.ErrDangerousExtension, bad, info.OriginalName)
	}

	// (d) размер
	ceiling := r.CeilingFor(entry.category)
	if hasPolicy {
		ceiling = p.MaxSizeBytes
	}
	if size > ceiling {
		return Decision{}, fmt.Errorf("%w: %d байт при максимуме %d", docerr.ErrFileTooLarge, size, ceiling)
	}

	return Decision{Extension: ext, Category: entry.category, Ceiling: ceiling}, nil
}

// allowsMime проверяет, разрешён ли зарегистрированный MIME-тип политикой.
func (p ValidationPolicy) allowsMime(mime string) bool {
	if _, ok := mimeTable[mime]; !ok {
		return false
	}
	for _, pattern := range p.AllowedMimeTypes {
		if matchesMime(mime, pattern) {
			return true
		}
	}
	return false
}

// matchesMime сравнивает MIME-тип с шаблоном: точное совпадение, "type/*" или "*".
func matchesMime(actual, pattern string) bool {
	if pattern == Wildcard || actual == pattern {
		return true
	}
	if prefix, ok := strings.CutSuffix(pattern, "/*"); ok {
		return strings.HasPrefix(actual, prefix+"/")
	}
	return false
}

// normalizeMime убирает параметры (charset и т.д.) и приводит к нижнему регистру.
func normalizeMime(mime string) string {
	if idx := strings.Index(mime, ";"); idx != -1 {
		mime = mime[:idx]
	}
	return strings.ToLower(strings.TrimSpace(mime))
}

func normalizeAll(in []string, fn func(string) string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		out = append(out, fn(s))
	}
	return out
}
