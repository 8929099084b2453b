package policy

// Default returns the policy shipped when no document exists yet.
func Default() Document {
	doc := Document{
		AutonomyLevel: AutonomySupervised,
		RiskThreshold: intPtr(DefaultRiskThreshold),
		AllowActions: []string{
			"chat.respond",
			"memory.read",
			"memory.write",
			"memory.search",
			"memory.rotateKey",
			"notes.create",
			"notes.search",
			"todos.create",
			"todos.list",
			"todos.createList",
			"todos.listLists",
			"todos.updateList",
			"todos.update",
			"todos.complete",
			"meeting.summarize",
			"calendar.proposeHold",
			"email.draftReply",
			"email.convertToTodo",
			"email.scheduleFollowUp",
			"email.replyWithContext",
			"email.sendWithContext",
			"email.send",
			"spreadsheet.applyChanges",
			"integrations.plexIdentity",
			"integrations.firefliesTranscripts",
			"integrations.fireflies.sync",
			"weather.current",
			"web.search",
			"shopping.productResearch",
			"shopping.amazonAddToCart",
			"messaging.slackPost",
			"messaging.telegramSend",
			"messaging.telegramVoiceSend",
			"messaging.discordSend",
			"messaging.whatsapp.send",
			"messaging.sms.send",
			"desktop.run",
			"desktop.launch",
			"desktop.input",
			"desktop.key",
			"desktop.mouse",
			"desktop.clipboard",
			"desktop.screenshot",
			"desktop.vision",
			"desktop.uia",
			"desktop.step",
			"desktop.panic",
			"action.run",
			"skill.vault.run",
			"browser.navigate",
			"api.external_post",
			"file.read",
			"file.write",
			"file.delete",
			"system.modify",
			"install.software",
			"audit.view",
			"approvals.view",
			"kill_switch.enable",
			"kill_switch.disable",
		},
		RequiresApproval: []string{
			"email.send",
			"email.sendWithContext",
			"file.delete",
			"system.modify",
			"install.software",
			"api.external_post",
			"messaging.slackPost",
			"messaging.telegramSend",
			"messaging.discordSend",
			"messaging.whatsapp.send",
			"messaging.sms.send",
			"desktop.run",
			"desktop.launch",
			"desktop.input",
			"desktop.key",
			"desktop.mouse",
			"desktop.clipboard",
			"desktop.screenshot",
			"desktop.vision",
			"desktop.uia",
			"desktop.step",
			"finance.transfer",
			"finance.trade",
			"kill_switch.disable",
		},
		ProtectedPaths: []string{
			`C:\Windows\*`,
			`C:\Program Files\*`,
			`C:\Program Files (x86)\*`,
			`C:\Users\*\AppData\*`,
			"/etc/*",
			"/bin/*",
			"/usr/*",
			"/var/*",
		},
		NetworkRules: NetworkRules{
			AllowlistDomains: []string{
				"localhost",
				"127.0.0.1",
				"api.telegram.org",
				"slack.com",
				"discord.com",
			},
			BlocklistDomains: []string{
				"pastebin.com",
				"paste.ee",
				"gist.github.com",
				"ghostbin.com",
				"hastebin.com",
			},
		},
		AbsoluteProhibitions: []string{
			"self.modify_safety",
			"disable.logging",
			"store.plaintext_credentials",
			"bypass.2fa",
			"browser.password_store",
			"finance.transfer",
			"finance.trade",
		},
		KillSwitch: KillSwitch{StopPhrase: DefaultStopPhrase},
		Logging: Logging{
			RetentionDays: DefaultRetentionDays,
			Redaction: Redaction{
				Patterns: []string{
					`api[_-]?key\s*[:=]\s*[^\s]+`,
					`secret\s*[:=]\s*[^\s]+`,
					`token\s*[:=]\s*[^\s]+`,
					`password\s*[:=]\s*[^\s]+`,
				},
			},
		},
		SelfProtection: SelfProtection{
			Paths: append(append([]string{}, SafetyPaths...), "*/policies/*"),
		},
	}
	doc.ApplyDefaults()
	return doc
}
