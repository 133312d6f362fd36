// Package cli реализует инструмент командной строки ZuriFlow.
//
// # Обзор
//
// CLI — клиентская утилита для ZuriFlow API. Работает через HTTP
// и не импортирует внутренние пакеты системы: типы ответов
// продублированы в client.go.
//
// # Ключевые компоненты
//
// ## Client
//
// HTTP-клиент для API. Разворачивает конверты {"data"} и
// {"data","total"}, ошибки API возвращает как *APIError с кодом,
// сообщением и деталями валидации.
//
//	client := cli.NewClient("http://localhost:8080")
//	defs, err := client.ListDefinitions()
//
// ## Output
//
// Таблицы через text/tabwriter по умолчанию, JSON с флагом --json.
// Данные идут в stdout, сообщения (Success/Error) в stderr:
//
//	zuriflow run list --json | jq .
//
// ## Commands
//
//   - definition: list, create -f FILE, show, delete
//   - run: list, start [--wait], show, status
//   - task: list, create, run [--param k=v], schedule --every|--cron
//   - schedule: list, create, pause, resume, delete
//
// Файлы definitions и задач принимаются в YAML или JSON (gopkg.in/yaml.v3).
// Адрес API задаётся флагом --api-url или переменной ZURIFLOW_API_URL.
package cli
