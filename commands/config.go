package commands

import (
	"context"
	"strconv"
	"strings"

	"github.com/bwmarrin/discordgo"

	"github.com/mii443/ncb-tts-r2/ncberr"
	"github.com/mii443/ncb-tts-r2/tts"
)

// Component and modal custom IDs. Select option values carry their
// payload as a suffix on the matching *_SELECTED_ prefix.
const (
	idEngineMenu           = "TTS_CONFIG_ENGINE"
	idEngineGoogle         = "TTS_CONFIG_ENGINE_SELECTED_GOOGLE"
	idEngineVoicevox       = "TTS_CONFIG_ENGINE_SELECTED_VOICEVOX"
	idGCPVoiceMenu         = "TTS_CONFIG_GCP_VOICE"
	idGCPVoicePrefix       = "TTS_CONFIG_GCP_VOICE_SELECTED_"
	idSpeakerMenuPrefix    = "TTS_CONFIG_VOICEVOX_SPEAKER_"
	idSpeakerPrefix        = "TTS_CONFIG_VOICEVOX_SPEAKER_SELECTED_"
	idServer               = "TTS_CONFIG_SERVER"
	idServerBack           = "TTS_CONFIG_SERVER_BACK"
	idServerDictionary     = "TTS_CONFIG_SERVER_DICTIONARY"
	idDictionaryAddButton  = "TTS_CONFIG_SERVER_ADD_DICTIONARY_BUTTON"
	idDictionaryAddModal   = "TTS_CONFIG_SERVER_ADD_DICTIONARY"
	idDictionaryRemove     = "TTS_CONFIG_SERVER_REMOVE_DICTIONARY_BUTTON"
	idDictionaryRemoveMenu = "TTS_CONFIG_SERVER_REMOVE_DICTIONARY_MENU"
	idDictionaryShow       = "TTS_CONFIG_SERVER_SHOW_DICTIONARY_BUTTON"
	idAutostartButton      = "TTS_CONFIG_SERVER_SET_AUTOSTART_CHANNEL"
	idAutostartMenu        = "SET_AUTOSTART_CHANNEL"
	idAutostartPrefix      = "SET_AUTOSTART_CHANNEL_"
	idAutostartClear       = "SET_AUTOSTART_CHANNEL_CLEAR"
	idToggleAnnounce       = "TTS_CONFIG_SERVER_SET_VOICE_STATE_ANNOUNCE"
	idToggleReadUsername   = "TTS_CONFIG_SERVER_SET_READ_USERNAME"
)

// selectMenuLimit is Discord's cap on options per select menu.
const selectMenuLimit = 25

// handleConfig opens the per-user voice configuration UI.
func (h *Handler) handleConfig(s *discordgo.Session, i *discordgo.InteractionCreate) error {
	ctx := context.Background()
	user := interactionUser(i)
	if user == nil {
		return nil
	}

	cfg, err := h.store.GetUserConfigOrDefault(ctx, user.ID)
	if err != nil {
		h.logger.Error("could not load user config for "+user.ID, err)
		return h.respondEphemeral(s, i, "設定の読み込みに失敗しました．")
	}

	components := []discordgo.MessageComponent{
		discordgo.ActionsRow{Components: []discordgo.MessageComponent{
			discordgo.SelectMenu{
				MenuType:    discordgo.StringSelectMenu,
				CustomID:    idEngineMenu,
				Placeholder: "読み上げAPIを選択",
				Options: []discordgo.SelectMenuOption{
					{Label: "Google TTS", Value: idEngineGoogle, Default: cfg.Engine == tts.EngineGCP},
					{Label: "VOICEVOX", Value: idEngineVoicevox, Default: cfg.Engine == tts.EngineVoicevox},
				},
			},
		}},
		discordgo.ActionsRow{Components: []discordgo.MessageComponent{
			discordgo.Button{CustomID: idServer, Label: "サーバー設定", Style: discordgo.PrimaryButton},
		}},
	}

	if menu := h.gcpVoiceMenu(ctx, cfg.GCPVoice.Name); menu != nil {
		components = append(components, discordgo.ActionsRow{Components: []discordgo.MessageComponent{*menu}})
	}
	if menu := h.voicevoxSpeakerMenu(ctx, cfg.VoicevoxSpeaker); menu != nil {
		components = append(components, discordgo.ActionsRow{Components: []discordgo.MessageComponent{*menu}})
	}

	return h.respond(s, i, &discordgo.InteractionResponseData{
		Content:    "読み上げ設定",
		Components: components,
		Flags:      discordgo.MessageFlagsEphemeral,
	})
}

func (h *Handler) gcpVoiceMenu(ctx context.Context, selected string) *discordgo.SelectMenu {
	voices, err := h.gcp.ListVoiceStyles(ctx)
	if err != nil {
		h.logger.Error("could not list Google TTS voices", err)
		return nil
	}
	if len(voices) > selectMenuLimit {
		voices = voices[:selectMenuLimit]
	}

	options := make([]discordgo.SelectMenuOption, 0, len(voices))
	for _, v := range voices {
		options = append(options, discordgo.SelectMenuOption{
			Label:   v[0],
			Value:   idGCPVoicePrefix + v[1],
			Default: v[1] == selected,
		})
	}
	if len(options) == 0 {
		return nil
	}
	return &discordgo.SelectMenu{
		MenuType:    discordgo.StringSelectMenu,
		CustomID:    idGCPVoiceMenu,
		Placeholder: "Google TTSの声を指定",
		Options:     options,
	}
}

func (h *Handler) voicevoxSpeakerMenu(ctx context.Context, selected int64) *discordgo.SelectMenu {
	speakers, err := h.voicevox.ListSpeakers(ctx)
	if err != nil {
		h.logger.Error("could not list VOICEVOX speakers", err)
		return nil
	}
	if len(speakers) > selectMenuLimit {
		speakers = speakers[:selectMenuLimit]
	}

	options := make([]discordgo.SelectMenuOption, 0, len(speakers))
	for _, sp := range speakers {
		options = append(options, discordgo.SelectMenuOption{
			Label:   sp[0],
			Value:   idSpeakerPrefix + sp[1],
			Default: sp[1] == strconv.FormatInt(selected, 10),
		})
	}
	if len(options) == 0 {
		return nil
	}
	return &discordgo.SelectMenu{
		MenuType:    discordgo.StringSelectMenu,
		CustomID:    idSpeakerMenuPrefix + "0",
		Placeholder: "VOICEVOX Speakerを指定",
		Options:     options,
	}
}

func (h *Handler) handleComponent(s *discordgo.Session, i *discordgo.InteractionCreate) {
	data := i.MessageComponentData()
	var err error
	switch {
	case data.CustomID == idServer || data.CustomID == idServerBack:
		err = h.showServerSettings(s, i)
	case data.CustomID == idServerDictionary:
		err = h.showDictionaryMenu(s, i)
	case data.CustomID == idDictionaryAddButton:
		err = h.openDictionaryModal(s, i)
	case data.CustomID == idDictionaryRemove:
		err = h.showDictionaryRemoveMenu(s, i)
	case data.CustomID == idDictionaryRemoveMenu:
		err = h.removeDictionaryRule(s, i, data.Values)
	case data.CustomID == idDictionaryShow:
		err = h.showDictionary(s, i)
	case data.CustomID == idAutostartButton:
		err = h.showAutostartMenu(s, i)
	case data.CustomID == idAutostartMenu:
		err = h.setAutostartChannel(s, i, data.Values)
	case data.CustomID == idToggleAnnounce:
		err = h.toggleAnnounce(s, i)
	case data.CustomID == idToggleReadUsername:
		err = h.toggleReadUsername(s, i)
	case data.CustomID == idEngineMenu || data.CustomID == idGCPVoiceMenu ||
		strings.HasPrefix(data.CustomID, idSpeakerMenuPrefix):
		err = h.applyUserSelection(s, i, data.Values)
	default:
		return
	}
	if err != nil {
		h.logger.Error("config interaction "+data.CustomID+" failed", err)
	}
}

// applyUserSelection persists an engine, voice or speaker choice from
// the per-user menus.
func (h *Handler) applyUserSelection(s *discordgo.Session, i *discordgo.InteractionCreate, values []string) error {
	if len(values) == 0 {
		return nil
	}
	ctx := context.Background()
	user := interactionUser(i)
	if user == nil {
		return nil
	}

	cfg, err := h.store.GetUserConfigOrDefault(ctx, user.ID)
	if err != nil {
		return err
	}

	voicevoxChanged := false
	switch v := values[0]; {
	case v == idEngineGoogle:
		cfg.Engine = tts.EngineGCP
	case v == idEngineVoicevox:
		cfg.Engine = tts.EngineVoicevox
	case strings.HasPrefix(v, idGCPVoicePrefix):
		cfg.GCPVoice.Name = strings.TrimPrefix(v, idGCPVoicePrefix)
	case strings.HasPrefix(v, idSpeakerPrefix):
		speaker, err := strconv.ParseInt(strings.TrimPrefix(v, idSpeakerPrefix), 10, 64)
		if err != nil {
			return err
		}
		cfg.VoicevoxSpeaker = speaker
		voicevoxChanged = true
	default:
		return nil
	}

	if err := h.store.SetUserConfig(ctx, user.ID, cfg); err != nil {
		return err
	}

	content := "設定しました"
	if voicevoxChanged && cfg.Engine == tts.EngineGCP {
		content = "設定しました\nこの音声を使うにはAPIをGoogleからVOICEVOXに変更する必要があります。"
	}
	return h.respondEphemeral(s, i, content)
}

func serverSettingsComponents() []discordgo.MessageComponent {
	return []discordgo.MessageComponent{
		discordgo.ActionsRow{Components: []discordgo.MessageComponent{
			discordgo.Button{CustomID: idServerDictionary, Label: "辞書管理", Style: discordgo.PrimaryButton},
			discordgo.Button{CustomID: idAutostartButton, Label: "自動参加チャンネル", Style: discordgo.PrimaryButton},
			discordgo.Button{CustomID: idToggleAnnounce, Label: "入退出アナウンス通知切り替え", Style: discordgo.PrimaryButton},
			discordgo.Button{CustomID: idToggleReadUsername, Label: "ユーザー名読み上げ切り替え", Style: discordgo.PrimaryButton},
		}},
	}
}

func (h *Handler) showServerSettings(s *discordgo.Session, i *discordgo.InteractionCreate) error {
	return h.updateMessage(s, i, &discordgo.InteractionResponseData{
		Content:    "サーバー設定",
		Components: serverSettingsComponents(),
	})
}

func (h *Handler) showDictionaryMenu(s *discordgo.Session, i *discordgo.InteractionCreate) error {
	return h.updateMessage(s, i, &discordgo.InteractionResponseData{
		Content: "辞書管理",
		Components: []discordgo.MessageComponent{
			discordgo.ActionsRow{Components: []discordgo.MessageComponent{
				discordgo.Button{CustomID: idDictionaryAddButton, Label: "辞書を追加", Style: discordgo.PrimaryButton},
				discordgo.Button{CustomID: idDictionaryRemove, Label: "辞書を削除", Style: discordgo.DangerButton},
				discordgo.Button{CustomID: idDictionaryShow, Label: "辞書一覧", Style: discordgo.PrimaryButton},
			}},
			discordgo.ActionsRow{Components: []discordgo.MessageComponent{
				discordgo.Button{CustomID: idServerBack, Label: "← サーバー設定に戻る", Style: discordgo.SecondaryButton},
			}},
		},
	})
}

func (h *Handler) openDictionaryModal(s *discordgo.Session, i *discordgo.InteractionCreate) error {
	return s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseModal,
		Data: &discordgo.InteractionResponseData{
			CustomID: idDictionaryAddModal,
			Title:    "辞書追加",
			Components: []discordgo.MessageComponent{
				discordgo.ActionsRow{Components: []discordgo.MessageComponent{
					discordgo.TextInput{CustomID: "rule_name", Label: "辞書名", Style: discordgo.TextInputShort, Required: true},
				}},
				discordgo.ActionsRow{Components: []discordgo.MessageComponent{
					discordgo.TextInput{CustomID: "from", Label: "変換元（正規表現）", Style: discordgo.TextInputParagraph, Required: true},
				}},
				discordgo.ActionsRow{Components: []discordgo.MessageComponent{
					discordgo.TextInput{CustomID: "to", Label: "変換先", Style: discordgo.TextInputShort, Required: true},
				}},
			},
		},
	})
}

func (h *Handler) handleModal(s *discordgo.Session, i *discordgo.InteractionCreate) {
	data := i.ModalSubmitData()
	if data.CustomID != idDictionaryAddModal {
		return
	}
	if err := h.addDictionaryRule(s, i, data); err != nil {
		h.logger.Error("could not add dictionary rule", err)
	}
}

func (h *Handler) addDictionaryRule(s *discordgo.Session, i *discordgo.InteractionCreate, data discordgo.ModalSubmitInteractionData) error {
	name := modalValue(data, 0)
	from := modalValue(data, 1)
	to := modalValue(data, 2)

	if err := ncberr.ValidateRuleName(name); err != nil {
		return h.respondEphemeral(s, i, "辞書名が不正です: "+err.Error())
	}
	if err := ncberr.ValidateRegexPattern(from); err != nil {
		return h.respondEphemeral(s, i, "変換元の正規表現が不正です: "+err.Error())
	}

	ctx := context.Background()
	cfg, err := h.store.GetServerConfigOrDefault(ctx, i.GuildID)
	if err != nil {
		return err
	}
	cfg.Dictionary.Add(name, true, from, to)
	if err := h.store.SetServerConfig(ctx, i.GuildID, cfg); err != nil {
		return err
	}

	return h.updateMessage(s, i, &discordgo.InteractionResponseData{
		Content: "辞書を追加しました\n名前: " + name + "\n変換元: " + from + "\n変換後: " + to,
	})
}

func modalValue(data discordgo.ModalSubmitInteractionData, row int) string {
	if row >= len(data.Components) {
		return ""
	}
	actionsRow, ok := data.Components[row].(*discordgo.ActionsRow)
	if !ok || len(actionsRow.Components) == 0 {
		return ""
	}
	input, ok := actionsRow.Components[0].(*discordgo.TextInput)
	if !ok {
		return ""
	}
	return input.Value
}

// showDictionaryRemoveMenu lists rules keyed by their stable IDs so a
// concurrent edit can never delete the wrong rule.
func (h *Handler) showDictionaryRemoveMenu(s *discordgo.Session, i *discordgo.InteractionCreate) error {
	cfg, err := h.store.GetServerConfigOrDefault(context.Background(), i.GuildID)
	if err != nil {
		return err
	}
	if len(cfg.Dictionary.Rules) == 0 {
		return h.updateMessage(s, i, &discordgo.InteractionResponseData{Content: "辞書が登録されていません"})
	}

	rules := cfg.Dictionary.Rules
	if len(rules) > selectMenuLimit {
		rules = rules[:selectMenuLimit]
	}
	options := make([]discordgo.SelectMenuOption, 0, len(rules))
	for _, rule := range rules {
		options = append(options, discordgo.SelectMenuOption{
			Label:       rule.Name,
			Value:       rule.ID,
			Description: rule.Rule + " -> " + rule.To,
		})
	}

	return h.updateMessage(s, i, &discordgo.InteractionResponseData{
		Content: "削除する辞書内容を選択してください",
		Components: []discordgo.MessageComponent{
			discordgo.ActionsRow{Components: []discordgo.MessageComponent{
				discordgo.SelectMenu{
					MenuType: discordgo.StringSelectMenu,
					CustomID: idDictionaryRemoveMenu,
					Options:  options,
				},
			}},
		},
	})
}

func (h *Handler) removeDictionaryRule(s *discordgo.Session, i *discordgo.InteractionCreate, values []string) error {
	if len(values) == 0 {
		return nil
	}
	ctx := context.Background()
	cfg, err := h.store.GetServerConfigOrDefault(ctx, i.GuildID)
	if err != nil {
		return err
	}
	if !cfg.Dictionary.Remove(values[0]) {
		return h.updateMessage(s, i, &discordgo.InteractionResponseData{Content: "辞書が見つかりませんでした"})
	}
	if err := h.store.SetServerConfig(ctx, i.GuildID, cfg); err != nil {
		return err
	}
	return h.updateMessage(s, i, &discordgo.InteractionResponseData{Content: "辞書を削除しました"})
}

func (h *Handler) showDictionary(s *discordgo.Session, i *discordgo.InteractionCreate) error {
	cfg, err := h.store.GetServerConfigOrDefault(context.Background(), i.GuildID)
	if err != nil {
		return err
	}

	fields := make([]*discordgo.MessageEmbedField, 0, len(cfg.Dictionary.Rules))
	for _, rule := range cfg.Dictionary.Rules {
		fields = append(fields, &discordgo.MessageEmbedField{
			Name:   rule.Name,
			Value:  rule.Rule + " -> " + rule.To,
			Inline: true,
		})
	}

	return h.updateMessage(s, i, &discordgo.InteractionResponseData{
		Content: "",
		Embeds:  []*discordgo.MessageEmbed{{Title: "辞書一覧", Fields: fields}},
	})
}

func (h *Handler) showAutostartMenu(s *discordgo.Session, i *discordgo.InteractionCreate) error {
	cfg, err := h.store.GetServerConfigOrDefault(context.Background(), i.GuildID)
	if err != nil {
		return err
	}

	channels, err := s.GuildChannels(i.GuildID)
	if err != nil {
		return err
	}

	options := []discordgo.SelectMenuOption{{
		Label:       "解除",
		Value:       idAutostartClear,
		Description: "自動参加チャンネルを解除します",
		Default:     cfg.AutostartChannelID == "",
	}}
	for _, ch := range channels {
		if ch.Type != discordgo.ChannelTypeGuildVoice {
			continue
		}
		if len(options) == selectMenuLimit {
			break
		}
		description := ch.Topic
		if description == "" {
			description = "No topic provided."
		}
		options = append(options, discordgo.SelectMenuOption{
			Label:       ch.Name,
			Value:       idAutostartPrefix + ch.ID,
			Description: description,
			Default:     ch.ID == cfg.AutostartChannelID,
		})
	}

	return h.updateMessage(s, i, &discordgo.InteractionResponseData{
		Content: "自動参加チャンネル設定",
		Components: []discordgo.MessageComponent{
			discordgo.ActionsRow{Components: []discordgo.MessageComponent{
				discordgo.SelectMenu{
					MenuType: discordgo.StringSelectMenu,
					CustomID: idAutostartMenu,
					Options:  options,
				},
			}},
			discordgo.ActionsRow{Components: []discordgo.MessageComponent{
				discordgo.Button{CustomID: idServerBack, Label: "← サーバー設定に戻る", Style: discordgo.SecondaryButton},
			}},
		},
	})
}

func (h *Handler) setAutostartChannel(s *discordgo.Session, i *discordgo.InteractionCreate, values []string) error {
	channelID := ""
	if len(values) > 0 && values[0] != idAutostartClear {
		channelID = strings.TrimPrefix(values[0], idAutostartPrefix)
	}

	ctx := context.Background()
	cfg, err := h.store.GetServerConfigOrDefault(ctx, i.GuildID)
	if err != nil {
		return err
	}
	cfg.AutostartChannelID = channelID
	if channelID == "" {
		cfg.AutostartTextChannel = ""
	} else if cfg.AutostartTextChannel == "" {
		// Announcements land in the channel the config UI was opened
		// from unless a dedicated text channel was configured.
		cfg.AutostartTextChannel = i.ChannelID
	}
	if err := h.store.SetServerConfig(ctx, i.GuildID, cfg); err != nil {
		return err
	}

	content := "自動参加チャンネルを設定しました。"
	if channelID == "" {
		content = "自動参加チャンネルを解除しました。"
	}
	return h.updateMessage(s, i, &discordgo.InteractionResponseData{Content: content})
}

func (h *Handler) toggleAnnounce(s *discordgo.Session, i *discordgo.InteractionCreate) error {
	ctx := context.Background()
	cfg, err := h.store.GetServerConfigOrDefault(ctx, i.GuildID)
	if err != nil {
		return err
	}
	next := !cfg.AnnounceEnabled()
	cfg.VoiceStateAnnounce = &next
	if err := h.store.SetServerConfig(ctx, i.GuildID, cfg); err != nil {
		return err
	}
	return h.updateMessage(s, i, &discordgo.InteractionResponseData{
		Content: "入退出アナウンス通知を" + toggleLabel(next) + "へ切り替えました。",
	})
}

func (h *Handler) toggleReadUsername(s *discordgo.Session, i *discordgo.InteractionCreate) error {
	ctx := context.Background()
	cfg, err := h.store.GetServerConfigOrDefault(ctx, i.GuildID)
	if err != nil {
		return err
	}
	next := !cfg.ReadUsernameEnabled()
	cfg.ReadUsername = &next
	if err := h.store.SetServerConfig(ctx, i.GuildID, cfg); err != nil {
		return err
	}
	return h.updateMessage(s, i, &discordgo.InteractionResponseData{
		Content: "ユーザー名読み上げを" + toggleLabel(next) + "へ切り替えました。",
	})
}

func toggleLabel(enabled bool) string {
	if enabled {
		return "`有効`"
	}
	return "`無効`"
}
