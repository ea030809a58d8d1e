package console

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// PromptFunc sends one line of user text and returns the bot's replies.
type PromptFunc func(ctx context.Context, text string) (string, error)

func RunInteractive(ctx context.Context, promptFn PromptFunc, userLabel string) error {
	program := tea.NewProgram(newModel(ctx, promptFn, modeInteractive, "", userLabel), tea.WithMouseCellMotion())
	if _, err := program.Run(); err != nil {
		return err
	}

	fmt.Print("\033[H\033[2J")
	fmt.Println(renderGoodbyeBanner())
	return nil
}

func RunOneShot(ctx context.Context, promptFn PromptFunc, text, userLabel string) error {
	program := tea.NewProgram(newModel(ctx, promptFn, modeOneShot, text, userLabel))
	_, err := program.Run()
	return err
}

func renderGoodbyeBanner() string {
	style := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("231")).
		Background(lipgloss.Color("162")).
		Padding(1, 2)

	return style.Render("🍼 Sweet dreams")
}
