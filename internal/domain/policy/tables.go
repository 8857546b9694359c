package policy

// Category — общая категория MIME-типа.
type Category string

const (
	CategoryDocument     Category = "document"
	CategoryPresentation Category = "presentation"
	CategoryImage        Category = "image"
	CategoryVideo        Category = "video"
	CategoryArchive      Category = "archive"
	CategoryUnknown      Category = "unknown"
)

const mib = 1 << 20

// mimeEntry — категория MIME-типа и допустимые для него расширения.
type mimeEntry struct {
	category   Category
	extensions []string
}

// mimeTable — справочник известных MIME-типов.
var mimeTable = map[string]mimeEntry{
	"application/pdf":    {CategoryDocument, []string{".pdf"}},
	"application/msword": {CategoryDocument, []string{".doc"}},
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": {CategoryDocument, []string{".docx"}},
	"application/vnd.oasis.opendocument.text":                                 {CategoryDocument, []string{".odt"}},
	"application/rtf":          {CategoryDocument, []string{".rtf"}},
	"text/plain":               {CategoryDocument, []string{".txt"}},
	"text/markdown":            {CategoryDocument, []string{".md"}},
	"text/csv":                 {CategoryDocument, []string{".csv"}},
	"application/vnd.ms-excel": {CategoryDocument, []string{".xls"}},
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet": {CategoryDocument, []string{".xlsx"}},

	"application/vnd.ms-powerpoint": {CategoryPresentation, []string{".ppt"}},
	"application/vnd.openxmlformats-officedocument.presentationml.presentation": {CategoryPresentation, []string{".pptx"}},
	"application/vnd.oasis.opendocument.presentation":                           {CategoryPresentation, []string{".odp"}},

	"image/jpeg": {CategoryImage, []string{".jpg", ".jpeg"}},
	"image/png":  {CategoryImage, []string{".png"}},
	"image/gif":  {CategoryImage, []string{".gif"}},
	"image/webp": {CategoryImage, []string{".webp"}},

	"video/mp4":        {CategoryVideo, []string{".mp4", ".m4v"}},
	"video/quicktime":  {CategoryVideo, []string{".mov"}},
	"video/x-msvideo":  {CategoryVideo, []string{".avi"}},
	"video/webm":       {CategoryVideo, []string{".webm"}},
	"video/x-matroska": {CategoryVideo, []string{".mkv"}},
	"video/mpeg":       {CategoryVideo, []string{".mpeg", ".mpg"}},

	"application/zip":              {CategoryArchive, []string{".zip"}},
	"application/x-zip-compressed": {CategoryArchive, []string{".zip"}},
	"application/vnd.rar":          {CategoryArchive, []string{".rar"}},
	"application/x-rar-compressed": {CategoryArchive, []string{".rar"}},
	"application/x-7z-compressed":  {CategoryArchive, []string{".7z"}},
	"application/gzip":             {CategoryArchive, []string{".gz", ".tgz"}},
	"application/x-tar":            {CategoryArchive, []string{".tar"}},
}

// categoryCeilings — потолок размера по категории, если для типа документа
// нет собственного правила. unknown — минимальный.
var categoryCeilings = map[Category]int64{
	CategoryDocument:     25 * mib,
	CategoryPresentation: 50 * mib,
	CategoryImage:        10 * mib,
	CategoryVideo:        100 * mib,
	CategoryArchive:      50 * mib,
	CategoryUnknown:      1 * mib,
}

// dangerousExtensions — исполняемые и скриптовые расширения,
// запрещённые независимо от заявленного MIME-типа.
var dangerousExtensions = []string{
	".exe", ".bat", ".cmd", ".com", ".scr", ".msi", ".dll", ".ps1",
	".vbs", ".js", ".jar", ".sh", ".php", ".py", ".pl", ".rb", ".cgi",
	".apk", ".app", ".bin", ".wsf", ".hta", ".cpl", ".reg", ".lnk",
}

var (
	documentMimes = []string{
		"application/pdf",
		"application/msword",
		"application/vnd.openxmlformats-officedocument.wordprocessingml.document",
		"application/vnd.oasis.opendocument.text",
	}
	documentExts = []string{".pdf", ".doc", ".docx", ".odt"}

	presentationMimes = []string{
		"application/vnd.ms-powerpoint",
		"application/vnd.openxmlformats-officedocument.presentationml.presentation",
		"application/vnd.oasis.opendocument.presentation",
		"application/pdf",
	}
	presentationExts = []string{".ppt", ".pptx", ".odp", ".pdf"}

	videoMimes = []string{"video/*"}
	videoExts  = []string{".mp4", ".m4v", ".mov", ".avi", ".webm", ".mkv", ".mpeg", ".mpg"}
)

// DefaultPolicies — матрица политик по типам документов.
var DefaultPolicies = map[string]ValidationPolicy{
	"proposal_capstone1": {AllowedMimeTypes: documentMimes, AllowedExtensions: documentExts, MaxSizeBytes: 20 * mib},
	"proposal_capstone2": {AllowedMimeTypes: documentMimes, AllowedExtensions: documentExts, MaxSizeBytes: 20 * mib},
	"report_capstone1":   {AllowedMimeTypes: documentMimes, AllowedExtensions: documentExts, MaxSizeBytes: 50 * mib},
	"report_capstone2":   {AllowedMimeTypes: documentMimes, AllowedExtensions: documentExts, MaxSizeBytes: 50 * mib},

	"presentation_capstone1": {AllowedMimeTypes: presentationMimes, AllowedExtensions: presentationExts, MaxSizeBytes: 50 * mib},
	"presentation_capstone2": {AllowedMimeTypes: presentationMimes, AllowedExtensions: presentationExts, MaxSizeBytes: 50 * mib},

	"video_demo_capstone1": {AllowedMimeTypes: videoMimes, AllowedExtensions: videoExts, MaxSizeBytes: 100 * mib},
	"video_demo_capstone2": {AllowedMimeTypes: videoMimes, AllowedExtensions: videoExts, MaxSizeBytes: 100 * mib},

	"poster": {
		AllowedMimeTypes:  []string{"image/png", "image/jpeg", "application/pdf"},
		AllowedExtensions: []string{".png", ".jpg", ".jpeg", ".pdf"},
		MaxSizeBytes:      20 * mib,
	},
	"source_code_archive": {
		AllowedMimeTypes: []string{
			"application/zip", "application/x-zip-compressed",
			"application/vnd.rar", "application/x-rar-compressed",
			"application/x-7z-compressed", "application/gzip", "application/x-tar",
		},
		AllowedExtensions: []string{".zip", ".rar", ".7z", ".gz", ".tgz", ".tar"},
		MaxSizeBytes:      100 * mib,
	},
	"supporting_material": {
		AllowedMimeTypes: []string{Wildcard},
		AllowedExtensions: []string{
			".pdf", ".doc", ".docx", ".odt", ".txt", ".md", ".csv", ".xls", ".xlsx",
			".png", ".jpg", ".jpeg", ".pptx", ".zip",
		},
		MaxSizeBytes: 25 * mib,
	},
}
