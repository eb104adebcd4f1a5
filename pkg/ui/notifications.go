package ui

import (
	"fmt"
	"os/exec"
	"runtime"

	"jiraharvest/pkg/harvester"
)

// NotificationSender interface for platform-specific notification implementations
type NotificationSender interface {
	Send(title, message string) error
}

// LinuxNotificationSender sends notifications on Linux using notify-send
type LinuxNotificationSender struct{}

func (l *LinuxNotificationSender) Send(title, message string) error {
	return exec.Command("notify-send", title, message).Run()
}

// MacOSNotificationSender sends notifications on macOS using osascript
type MacOSNotificationSender struct{}

func (m *MacOSNotificationSender) Send(title, message string) error {
	script := fmt.Sprintf(`display notification %q with title %q`, message, title)
	return exec.Command("osascript", "-e", script).Run()
}

// WindowsNotificationSender sends notifications on Windows using PowerShell
type WindowsNotificationSender struct{}

func (w *WindowsNotificationSender) Send(title, message string) error {
	script := fmt.Sprintf(`
		[Windows.UI.Notifications.ToastNotificationManager, Windows.UI.Notifications, ContentType = WindowsRuntime] | Out-Null
		[Windows.Data.Xml.Dom.XmlDocument, Windows.Data.Xml.Dom.XmlDocument, ContentType = WindowsRuntime] | Out-Null
		$xml = @"
<toast>
	<visual>
		<binding template="ToastText02">
			<text id="1">%s</text>
			<text id="2">%s</text>
		</binding>
	</visual>
</toast>
"@
		$doc = [Windows.Data.Xml.Dom.XmlDocument]::new()
		$doc.LoadXml($xml)
		$toast = [Windows.UI.Notifications.ToastNotification]::new($doc)
		[Windows.UI.Notifications.ToastNotificationManager]::CreateToastNotifier("jiraharvest").Show($toast)
	`, title, message)

	return exec.Command("powershell", "-NoProfile", "-NonInteractive", "-Command", script).Run()
}

// PlatformSender returns the desktop sender for this OS, or nil.
func PlatformSender() NotificationSender {
	switch runtime.GOOS {
	case "linux":
		return &LinuxNotificationSender{}
	case "darwin":
		return &MacOSNotificationSender{}
	case "windows":
		return &WindowsNotificationSender{}
	default:
		return nil
	}
}

// NotifyOptions selects which harvest events raise a notification
type NotifyOptions struct {
	OnComplete bool
	OnError    bool
}

// Notifier sends desktop notifications about a harvest. It implements
// harvester.Observer; only halted sources produce events while running.
type Notifier struct {
	sender NotificationSender
	opts   NotifyOptions
}

var _ harvester.Observer = (*Notifier)(nil)

// NewNotifier creates a Notifier for the current platform
func NewNotifier(opts NotifyOptions) *Notifier {
	return NewNotifierWithSender(PlatformSender(), opts)
}

// NewNotifierWithSender creates a Notifier with an explicit sender
func NewNotifierWithSender(sender NotificationSender, opts NotifyOptions) *Notifier {
	return &Notifier{sender: sender, opts: opts}
}

func (n *Notifier) send(title, message string) {
	if n.sender == nil {
		return
	}
	// Notifications are best effort.
	_ = n.sender.Send(title, message)
}

func (n *Notifier) SourceStarted(string, int) {}

func (n *Notifier) PageProcessed(harvester.PageEvent) {}

// SourceFinished notifies about a halted source.
func (n *Notifier) SourceFinished(res harvester.Result) {
	if !n.opts.OnError || !res.Halted() {
		return
	}
	n.send("jiraharvest: "+res.Source+" halted",
		fmt.Sprintf("Stopped at offset %d: %v", res.Offset, res.Err))
}

// RunFinished notifies with the run summary.
func (n *Notifier) RunFinished(report *harvester.Report) {
	if !n.opts.OnComplete || report == nil {
		return
	}
	msg := fmt.Sprintf("%d records from %d sources", report.Records(), len(report.Results))
	if halted := len(report.Halted()); halted > 0 {
		msg += fmt.Sprintf(", %d halted", halted)
	}
	n.send("jiraharvest: harvest complete", msg)
}
