// Package i18n holds the reply template catalog. Spanish is the shipped
// default; origins can switch with #osmlang.
package i18n

import "fmt"

// Key names one reply template.
type Key string

const (
	MsgMissingText         Key = "missing_text"
	MsgAckSuccess          Key = "ack_success"
	MsgAckQueued           Key = "ack_queued"
	MsgRejectNoGPS         Key = "reject_no_gps"
	MsgRejectStaleGPS      Key = "reject_stale_gps"
	MsgRejectInvalidCoords Key = "reject_invalid_coords"
	MsgRejectTooLong       Key = "reject_too_long"
	MsgRejectRateLimited   Key = "reject_rate_limited"
	MsgDuplicate           Key = "duplicate"
	MsgCreateError         Key = "create_error"
	MsgHelp                Key = "help"
	MsgStatus              Key = "status"
	MsgCount               Key = "count"
	MsgListHeader          Key = "list_header"
	MsgListEmpty           Key = "list_empty"
	MsgQueue               Key = "queue"
	MsgNodesHeader         Key = "nodes_header"
	MsgNodesEmpty          Key = "nodes_empty"
	MsgPromoted            Key = "promoted"
	MsgSummary             Key = "summary"
	MsgDailyBroadcast      Key = "daily_broadcast"
	MsgPrivacySuffix       Key = "privacy_suffix"
	MsgApproxMarker        Key = "approx_marker"
	MsgAttribution         Key = "attribution"
	MsgLangSet             Key = "lang_set"
	MsgLangUnknown         Key = "lang_unknown"
	MsgYes                 Key = "yes"
	MsgNo                  Key = "no"
)

var catalogs = map[string]map[Key]string{
	"es": {
		MsgMissingText:         "❌ Falta el texto del reporte.\nUsa: #osmnote <tu mensaje>",
		MsgAckSuccess:          "✅ Reporte recibido y nota creada en OSM.\n📝 Nota: #%d\n%s%s",
		MsgAckQueued:           "✅ Reporte recibido. Quedó en cola para enviar cuando haya Internet.\n📦 En cola: %s",
		MsgRejectNoGPS:         "❌ Reporte recibido, pero no hay GPS reciente del dispositivo.\nMantén el equipo encendido al aire libre 30–60 s y reenvía.",
		MsgRejectStaleGPS:      "❌ Reporte recibido, pero la última posición es muy vieja.\nEspera a que el GPS se actualice y reenvía.",
		MsgRejectInvalidCoords: "❌ Las coordenadas GPS recibidas son inválidas.\nVerifica que el GPS esté funcionando correctamente.",
		MsgRejectTooLong:       "❌ El mensaje es demasiado largo (máximo %d caracteres).\nAcorta el mensaje y reenvía.",
		MsgRejectRateLimited:   "❌ Demasiados mensajes. Espera un momento y reenvía.",
		MsgDuplicate:           "✅ Reporte recibido (ya estaba registrado).",
		MsgCreateError:         "❌ Error al crear la nota. Intenta de nuevo.",
		MsgHelp:                "ℹ️ Para crear una nota de mapeo escribe:\n#osmnote <tu mensaje>\n\nOtros comandos: #osmstatus #osmcount #osmlist #osmqueue #osmlang",
		MsgStatus:              "ℹ️ Gateway activo\nInternet: %s\nCola total: %d\nTu cola: %d",
		MsgCount:               "📊 Notas creadas:\nHoy: %d\nTotal: %d",
		MsgListHeader:          "📝 Últimas %d notas:",
		MsgListEmpty:           "📝 No hay notas registradas.",
		MsgQueue:               "📦 Cola:\nTotal: %d\nTu cola: %d",
		MsgNodesHeader:         "📡 Nodos con posición (%d):",
		MsgNodesEmpty:          "📡 Sin posiciones registradas.",
		MsgPromoted:            "✅ Enviado desde cola: %s → Nota OSM #%d\n%s",
		MsgSummary:             "✅ %d reportes enviados. Usa #osmlist para detalles.",
		MsgDailyBroadcast:      "ℹ️ Gateway de notas OSM activo.\nUsa:\n#osmnote <mensaje>\n#osmhelp",
		MsgPrivacySuffix:       "\n⚠️ No envíes datos personales ni emergencias médicas.",
		MsgApproxMarker:        "[posición aproximada]",
		MsgAttribution:         "Enviado vía gateway LoRa de notas OSM",
		MsgLangSet:             "✅ Idioma configurado: %s",
		MsgLangUnknown:         "❌ Idioma no disponible: %s. Usa: es, en",
		MsgYes:                 "✅ OK",
		MsgNo:                  "❌ NO",
	},
	"en": {
		MsgMissingText:         "❌ Missing report text.\nUse: #osmnote <your message>",
		MsgAckSuccess:          "✅ Report received, OSM note created.\n📝 Note: #%d\n%s%s",
		MsgAckQueued:           "✅ Report received. Queued until Internet is back.\n📦 Queued: %s",
		MsgRejectNoGPS:         "❌ Report received, but the device has no recent GPS fix.\nKeep the device outdoors 30–60 s and resend.",
		MsgRejectStaleGPS:      "❌ Report received, but the last position is too old.\nWait for a GPS update and resend.",
		MsgRejectInvalidCoords: "❌ The received GPS coordinates are invalid.\nCheck that GPS is working properly.",
		MsgRejectTooLong:       "❌ Message too long (max %d characters).\nShorten it and resend.",
		MsgRejectRateLimited:   "❌ Too many messages. Wait a moment and resend.",
		MsgDuplicate:           "✅ Report received (already registered).",
		MsgCreateError:         "❌ Could not create the note. Try again.",
		MsgHelp:                "ℹ️ To create a mapping note write:\n#osmnote <your message>\n\nOther commands: #osmstatus #osmcount #osmlist #osmqueue #osmlang",
		MsgStatus:              "ℹ️ Gateway up\nInternet: %s\nTotal queue: %d\nYour queue: %d",
		MsgCount:               "📊 Notes created:\nToday: %d\nTotal: %d",
		MsgListHeader:          "📝 Last %d notes:",
		MsgListEmpty:           "📝 No notes registered.",
		MsgQueue:               "📦 Queue:\nTotal: %d\nYours: %d",
		MsgNodesHeader:         "📡 Nodes with position (%d):",
		MsgNodesEmpty:          "📡 No positions cached.",
		MsgPromoted:            "✅ Sent from queue: %s → OSM note #%d\n%s",
		MsgSummary:             "✅ %d reports flushed. Use #osmlist for details.",
		MsgDailyBroadcast:      "ℹ️ OSM notes gateway up.\nUse:\n#osmnote <message>\n#osmhelp",
		MsgPrivacySuffix:       "\n⚠️ Do not send personal data or medical emergencies.",
		MsgApproxMarker:        "[approximate position]",
		MsgAttribution:         "Sent via LoRa OSM notes gateway",
		MsgLangSet:             "✅ Language set: %s",
		MsgLangUnknown:         "❌ Language not available: %s. Use: es, en",
		MsgYes:                 "✅ OK",
		MsgNo:                  "❌ NO",
	},
}

// Localizer resolves templates with a fallback language.
type Localizer struct {
	fallback string
}

// NewLocalizer builds a localizer whose fallback is used when the requested
// language or key is missing. Unknown fallbacks degrade to Spanish.
func NewLocalizer(fallback string) *Localizer {
	if _, ok := catalogs[fallback]; !ok {
		fallback = "es"
	}
	return &Localizer{fallback: fallback}
}

// Supported reports whether a language code has a catalog.
func Supported(lang string) bool {
	_, ok := catalogs[lang]
	return ok
}

// Fallback returns the configured default language.
func (l *Localizer) Fallback() string {
	return l.fallback
}

// T renders the template for key in lang (or the fallback), applying the
// printf arguments.
func (l *Localizer) T(lang string, key Key, args ...interface{}) string {
	cat, ok := catalogs[lang]
	if !ok {
		cat = catalogs[l.fallback]
	}
	tmpl, ok := cat[key]
	if !ok {
		tmpl = catalogs[l.fallback][key]
	}
	if len(args) == 0 {
		return tmpl
	}
	return fmt.Sprintf(tmpl, args...)
}
