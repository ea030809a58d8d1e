package console

import "github.com/charmbracelet/lipgloss"

// palette names the nursery colours the console is drawn with.
type palette struct {
	rose, blush, sky, mint, cream, milk, ink, night, dusk, alert, alertDark lipgloss.Color
}

var nursery = palette{
	rose:      "162",
	blush:     "218",
	sky:       "117",
	mint:      "114",
	cream:     "230",
	milk:      "252",
	ink:       "16",
	night:     "234",
	dusk:      "236",
	alert:     "203",
	alertDark: "52",
}

// theme groups the styles of each console region.
type theme struct {
	header     lipgloss.Style
	headerMeta lipgloss.Style
	divider    lipgloss.Style
	bootLine   lipgloss.Style
	bootDone   lipgloss.Style
	userBox    lipgloss.Style
	userTitle  lipgloss.Style
	botBox     lipgloss.Style
	botTitle   lipgloss.Style
	errorBox   lipgloss.Style
	errorTitle lipgloss.Style
	status     lipgloss.Style
	statusBusy lipgloss.Style
	statusErr  lipgloss.Style
	hint       lipgloss.Style
	inputLabel lipgloss.Style
	input      lipgloss.Style
	viewport   lipgloss.Style
}

func card(border, background lipgloss.Color) lipgloss.Style {
	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(border).
		Background(background).
		Padding(0, 1)
}

func badge(foreground, background lipgloss.Color) lipgloss.Style {
	return lipgloss.NewStyle().
		Bold(true).
		Foreground(foreground).
		Background(background).
		Padding(0, 1)
}

func text(color lipgloss.Color, bold bool) lipgloss.Style {
	return lipgloss.NewStyle().Foreground(color).Bold(bold)
}

func defaultTheme() theme {
	p := nursery
	return theme{
		header:     badge(p.cream, p.rose),
		headerMeta: text(p.blush, false),
		divider:    text(p.rose, false),
		bootLine:   text(p.milk, false),
		bootDone:   text(p.mint, true),
		userBox:    card(p.blush, p.dusk),
		userTitle:  badge(p.ink, p.blush),
		botBox:     card(p.sky, p.night),
		botTitle:   badge(p.ink, p.sky),
		errorBox:   card(p.alert, p.alertDark).Foreground(p.alert),
		errorTitle: badge(p.cream, p.alert),
		status:     text(p.milk, true),
		statusBusy: text(p.blush, true),
		statusErr:  text(p.alert, true),
		hint:       text(p.milk, false).Faint(true),
		inputLabel: text(p.cream, true),
		input:      card(p.blush, p.dusk),
		viewport:   card(p.rose, p.night).Border(lipgloss.ThickBorder()),
	}
}
