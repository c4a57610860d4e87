/*
包 metrics 提供基于 Prometheus 的全链路指标采集能力，覆盖
HTTP、LLM、Agent、检索、缓存与存储六大维度。

# 概述

本包通过 Collector 统一注册和记录 Prometheus 指标，使用 promauto
自动注册机制，避免手动管理 Registry。所有指标按 namespace 隔离，
支持多维度 label 分组，便于 Grafana 等工具进行可视化与告警。

# 核心类型

  - Collector：指标收集器，持有 Counter、Histogram、Gauge 等
    Prometheus 向量指标，按业务域分组管理。

# 主要能力

  - HTTP 指标：请求总数与耗时，按 method/path/status 分组，
    状态码归类为 2xx/3xx/4xx/5xx。
  - LLM 指标：请求总数、请求耗时、Token 用量（prompt/completion），
    按 provider/model 分组。
  - Agent 指标：请求处理总数与耗时，按 agent_id/action 分组。
  - 检索指标：检索耗时与返回条数，按 strategy 分组。
  - 缓存指标：命中与未命中计数，按 cache_type 分组。
  - 存储指标：已索引/暂存块数 Gauge、目录文档数 Gauge。
*/
package metrics
