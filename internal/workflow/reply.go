package workflow

import (
	"fmt"
	"strings"
)

// Button captions shared with the chat surface.
const (
	ButtonUpload  = "📷 Загрузить фото"
	ButtonProfile = "👤 Мой профиль"
	ButtonHelp    = "❓ Помощь"
	ButtonBack    = "🔙 Назад"
	ButtonCancel  = "❌ Отмена"
	ButtonContact = "📱 Поделиться контактом"
	ButtonSendGeo = "📍 Отправить геолокацию"
)

// Reply is one outbound message. Options are numbered choices the agent may
// answer by text or by number; Buttons are fixed menu entries.
type Reply struct {
	Text            string   `json:"text"`
	Options         []string `json:"options,omitempty"`
	Buttons         []string `json:"buttons,omitempty"`
	RequestContact  bool     `json:"request_contact,omitempty"`
	RequestLocation bool     `json:"request_location,omitempty"`
}

// Render formats the reply as plain text for channels without keyboards.
func (r Reply) Render() string {
	var b strings.Builder
	b.WriteString(r.Text)
	if len(r.Options) > 0 {
		b.WriteString("\n")
		for i, opt := range r.Options {
			fmt.Fprintf(&b, "\n%d. %s", i+1, opt)
		}
		b.WriteString("\n\nОтветьте номером или названием.")
	}
	if r.RequestContact {
		b.WriteString("\n\n" + ButtonContact + ": отправьте слово «контакт» или свою визитку.")
	}
	if r.RequestLocation {
		b.WriteString("\n\n" + ButtonSendGeo + ": Вложение → Местоположение.")
	}
	if len(r.Buttons) > 0 {
		b.WriteString("\n\n" + strings.Join(r.Buttons, " | "))
	}
	return b.String()
}

// RenderAll joins several replies into one message.
func RenderAll(replies []Reply) string {
	parts := make([]string, 0, len(replies))
	for _, r := range replies {
		parts = append(parts, r.Render())
	}
	return strings.Join(parts, "\n\n")
}

var mainButtons = []string{ButtonUpload, ButtonProfile, ButtonHelp}

var weekdays = [...]string{
	"Воскресенье",
	"Понедельник",
	"Вторник",
	"Среда",
	"Четверг",
	"Пятница",
	"Суббота",
}

func mainMenu(text string) Reply {
	return Reply{Text: text, Buttons: mainButtons}
}

func contactPrompt(text string) Reply {
	return Reply{Text: text, RequestContact: true}
}

func plain(text string) Reply {
	return Reply{Text: text}
}

const (
	textWelcome = "👋 Привет! Я бот для загрузки фотографий магазинов.\n\n" +
		"Для начала работы, пожалуйста, поделитесь своим контактом, " +
		"чтобы я мог проверить ваш номер телефона в системе."
	textHelp = "📋 Инструкция по использованию бота:\n\n" +
		"1. Отправьте свой контакт для авторизации\n" +
		"2. После успешной авторизации выберите «Загрузить фото»\n" +
		"3. Выберите магазин из списка на сегодня\n" +
		"4. Отправьте геолокацию для привязки к фотографии\n" +
		"5. Выберите тип фотографии\n" +
		"6. Загрузите свежую фотографию магазина\n\n" +
		"Если у вас возникли проблемы, обратитесь к администратору."

	textAuthOK          = "✅ Успешная авторизация!\n\nТеперь вы можете загружать фотографии."
	textAuthNotFound    = "❌ Ваш номер не найден в нашей системе.\nОбратитесь к администратору для регистрации вашего магазина."
	textAuthError       = "Произошла ошибка при проверке вашего номера. Пожалуйста, попробуйте позже."
	textNotOwnContact   = "Пожалуйста, отправьте свой собственный контакт."
	textNeedAuth        = "Для загрузки фото необходимо авторизоваться. Пожалуйста, поделитесь контактом."
	textShareContact    = "Для начала работы, пожалуйста, поделитесь своим контактом."
	textNotAuthorized   = "Вы еще не авторизованы. Пожалуйста, поделитесь своим контактом для авторизации."
	textAgentGone       = "❌ Ваш номер больше не найден в системе. Пожалуйста, авторизуйтесь снова."
	textUseMenu         = "Используйте кнопки меню для навигации."
	textProfile         = "📱 Телефон: %s"
	textCancelled       = "Отменено. Возвращаемся в главное меню."
	textBackToMenu      = "Возвращаемся в главное меню."
	textScheduleError   = "Ошибка при получении расписания."
	textNoStores        = "На сегодня (%s) у вас нет назначенных магазинов."
	textChooseStore     = "Ваши магазины на сегодня:\n\nВыберите магазин:"
	textUnknownStore    = "Магазин «%s» не найден в вашем расписании на сегодня. Выберите магазин из списка:"
	textShopSaved       = "Название магазина «%s» сохранено.\nТеперь отправьте геолокацию."
	textSendLocation    = "Отправьте геолокацию магазина."
	textGeofenceFailed  = "📍 Геолокация не совпадает с адресом магазина «%s».\nВозвращаемся в главное меню."
	textChooseCategory  = "📍 Геолокация получена!\n\nТеперь выберите тип фото."
	textPickCategory    = "Выберите тип фото из списка:"
	textChooseOrimi     = "📋 Тип: %s\n\nВыберите бренд ОРИМИ:"
	textChooseRival     = "📋 Тип: %s\n\nВыберите бренд конкурента:"
	textPickBrand       = "Выберите бренд из списка:"
	textEnterCount      = "📋 Выбран бренд конкурента: %s\n\nВведите количество товаров конкурентов:"
	textNotANumber      = "Введите число, а не что-то другое:"
	textSendPhotoRMP    = "📋 Тип фото: %s\n\nТеперь отправьте фотографию магазина."
	textSendPhotoOrimi  = "📋 Выбран бренд ОРИМИ: %s\n\nТеперь отправьте фотографию магазина."
	textWaitingPhoto    = "Отправьте фотографию магазина, сделанную только что."
	textStoreUnknown    = "Ваш магазин не зарегистрирован."
	textUploading       = "⏳ Загрузка файла..."
	textDownloadFailed  = "❌ Не удалось загрузить файл. Попробуйте отправить фото ещё раз."
	textPhotoSaved      = "✅ Файл успешно сохранен"
	textMorePhotos      = "Хотите загрузить еще фото?"
	textDataSaved       = "Данные успешно сохранены!"
	textSaveFailed      = "❌ Ошибка при сохранении файла."
	textDataSaveFailed  = "❌ Ошибка при сохранении данных."
	textUnknownError    = "❗ Неизвестная ошибка."
	textPhotoStale      = "❌ Фото сделано более %d минут назад. Пожалуйста, сделайте свежее фото."
	textPhotoFuture     = "❌ Время съемки фото указано в будущем. Проверьте время на телефоне и сделайте новое фото."
	textMetadataMissing = "❌ Фото не содержит необходимые метаданные (EXIF). Пожалуйста, сделайте фото через камеру телефона."
	textUnsupported     = "❌ Формат файла не поддерживается. Отправьте фото в формате JPG, PNG или HEIC."
	textConversion      = "❌ Не удалось обработать фото HEIC. Попробуйте отправить фото в формате JPG."
	textBackToShop      = "Возвращаемся к выбору магазина."
	textBackToLocation  = "Возвращаемся к отправке геолокации."
	textBackToCategory  = "Возвращаемся к выбору типа фото."
	textBackToBrand     = "Возвращаемся к выбору бренда."
)
