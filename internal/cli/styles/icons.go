package styles

// Nerd Font icons (requires a Nerd Font to display correctly)
const (
	IconVersion   = "" //  tag
	IconGitBranch = "" //  git branch
	IconCalendar  = "" //  calendar
	IconGithub    = "" //  github
	IconHeart     = "" //  heart
	IconGo        = "" //  go gopher
	IconArrow     = "" //  arrow right

	// Status
	IconCheck   = "" // check
	IconX       = "" // x
	IconWarning = "" // warning
	IconInfo    = "" // info
	IconPlay    = "" // play (connected)
	IconStop    = "" // stop (disconnected)

	// Filesystem / resources
	IconTrash    = "" // trash
	IconFolder   = "" // folder
	IconConfig   = "" // config
	IconDatabase = "" // database

	// Views
	IconView      = "" // window
	IconViewStack = "" // clone/stack
	IconExtension = "" // puzzle piece
	IconClock     = "" // clock
)
